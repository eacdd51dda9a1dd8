package models

import (
	"crypto/ed25519"
	"crypto/subtle"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// IdentitySize - размер идентификатора (публичного ключа ed25519) в байтах.
const IdentitySize = ed25519.PublicKeySize

// ErrInvalidIdentity возвращается для идентификаторов, которые не являются 32-байтовым ключом.
var ErrInvalidIdentity = errors.New("некорректный идентификатор")

// Identity - публичный ключ владельца или подписанта.
// Текстовое представление - base58, как у адресов аккаунтов.
type Identity [IdentitySize]byte

// ParseIdentity разбирает base58-строку в Identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidIdentity, err) //nolint:errorlint // причина не нужна вызывающему
	}
	if len(raw) != IdentitySize {
		return id, fmt.Errorf("%w: ожидается %d байт, получено %d", ErrInvalidIdentity, IdentitySize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// IdentityFromPublicKey преобразует публичный ключ ed25519 в Identity.
func IdentityFromPublicKey(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != IdentitySize {
		return id, fmt.Errorf("%w: длина ключа %d", ErrInvalidIdentity, len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// PublicKey возвращает Identity как ключ проверки подписи.
func (id Identity) PublicKey() ed25519.PublicKey {
	pub := make(ed25519.PublicKey, IdentitySize)
	copy(pub, id[:])
	return pub
}

// IsZero сообщает, что идентификатор не задан.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Equal сравнивает идентификаторы за постоянное время.
func (id Identity) Equal(other Identity) bool {
	return subtle.ConstantTimeCompare(id[:], other[:]) == 1
}

func (id Identity) String() string {
	return base58.Encode(id[:])
}

// MarshalText реализует encoding.TextMarshaler (используется в JSON).
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Scan читает BYTEA из базы данных.
func (id *Identity) Scan(src any) error {
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("%w: неподдерживаемый тип %T", ErrInvalidIdentity, src)
	}
	if len(raw) != IdentitySize {
		return fmt.Errorf("%w: длина %d", ErrInvalidIdentity, len(raw))
	}
	copy(id[:], raw)
	return nil
}

// Value записывает идентификатор как BYTEA.
func (id Identity) Value() (driver.Value, error) {
	return id[:], nil
}
