package middleware

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/maynagashev/gophvault/internal/models"
)

// Тип для ключа контекста.
type contextKey string

// SignerKey - ключ для хранения идентификатора подписанта в контексте.
const SignerKey contextKey = "signer"

const (
	componentAuth = "AuthMiddleware"
	tokenIssuer   = "gophvault-signer"
)

// signerClaims - claims токена подписанта. Subject содержит base58-идентификатор,
// токен подписан закрытым ключом этого же идентификатора (EdDSA).
type signerClaims struct {
	jwt.RegisteredClaims
}

// IssueSignerToken выпускает токен, подтверждающий владение ключом priv.
func IssueSignerToken(priv ed25519.PrivateKey, ttl time.Duration) (string, error) {
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return "", errors.New("неподдерживаемый тип ключа")
	}
	signer, err := models.IdentityFromPublicKey(pub)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := signerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   signer.String(),
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи JWT: %w", err)
	}
	return signed, nil
}

// Authenticator проверяет токен подписанта и кладет его идентификатор в контекст.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Debug().Str("component", componentAuth).Msg("Заголовок Authorization отсутствует")
			http.Error(w, "Требуется аутентификация", http.StatusUnauthorized)
			return
		}

		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" || headerParts[1] == "" {
			log.Debug().Str("component", componentAuth).Msg("Неверный формат заголовка Authorization")
			http.Error(w, "Неверный формат токена", http.StatusUnauthorized)
			return
		}

		signer, err := verifySignerToken(headerParts[1])
		if err != nil {
			log.Info().Str("component", componentAuth).Err(err).Msg("Токен подписанта отклонен")
			http.Error(w, "Невалидный токен", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), SignerKey, signer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verifySignerToken проверяет подпись токена ключом из его subject.
func verifySignerToken(tokenString string) (models.Identity, error) {
	claims := &signerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		c, ok := token.Claims.(*signerClaims)
		if !ok {
			return nil, errors.New("неожиданный тип claims")
		}
		signer, err := models.ParseIdentity(c.Subject)
		if err != nil {
			return nil, err
		}
		return signer.PublicKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return models.Identity{}, err
	}
	if !token.Valid {
		return models.Identity{}, errors.New("невалидный токен")
	}
	return models.ParseIdentity(claims.Subject)
}

// GetSignerFromContext извлекает идентификатор подписанта из контекста запроса.
func GetSignerFromContext(ctx context.Context) (models.Identity, bool) {
	signer, ok := ctx.Value(SignerKey).(models.Identity)
	return signer, ok
}
