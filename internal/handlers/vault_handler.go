package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/maynagashev/gophvault/internal/middleware"
	"github.com/maynagashev/gophvault/internal/models"
	"github.com/maynagashev/gophvault/internal/services"
)

// VaultIDParam - имя параметра маршрута с ID хранилища.
const VaultIDParam = "id"

// MaxRequestBodySize - максимальный размер JSON-тела запроса в байтах.
const MaxRequestBodySize = 4 << 10

var errTrailingData = errors.New("лишние данные после JSON-объекта")

// VaultHandler обрабатывает HTTP-запросы к хранилищам.
type VaultHandler struct {
	vaultService services.VaultService
}

// NewVaultHandler создает новый экземпляр VaultHandler.
func NewVaultHandler(vs services.VaultService) *VaultHandler {
	return &VaultHandler{vaultService: vs}
}

// CreateVaultRequest - тело запроса на создание хранилища.
type CreateVaultRequest struct {
	Owner models.Identity `json:"owner"`
	ID    *uuid.UUID      `json:"id,omitempty"`
}

// CreateVaultResponse - ответ на создание хранилища.
type CreateVaultResponse struct {
	ID models.VaultID `json:"id"`
}

// AmountRequest - тело запросов deposit и withdraw.
type AmountRequest struct {
	Amount *models.Amount `json:"amount"`
}

// BalanceResponse - баланс после операции.
type BalanceResponse struct {
	Balance models.Amount `json:"balance"`
}

// Create обрабатывает POST /api/vaults.
func (h *VaultHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateVaultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Debug().Str("component", "VaultHandler:Create").Err(err).Msg("Ошибка декодирования запроса")
		writeDecodeError(w, err)
		return
	}

	id, err := h.vaultService.Create(r.Context(), services.CreateRequest{ID: req.ID, Owner: req.Owner})
	if err != nil {
		writeServiceError(w, "Create", err)
		return
	}

	writeJSON(w, "Create", http.StatusCreated, CreateVaultResponse{ID: id})
}

// Get обрабатывает GET /api/vaults/{id}.
func (h *VaultHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultIDFromRequest(w, r)
	if !ok {
		return
	}

	view, err := h.vaultService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Get", err)
		return
	}

	writeJSON(w, "Get", http.StatusOK, view)
}

// Deposit обрабатывает POST /api/vaults/{id}/deposit.
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	id, signer, amount, ok := parseAmountRequest(w, r, "Deposit")
	if !ok {
		return
	}

	balance, err := h.vaultService.Deposit(r.Context(), services.DepositRequest{
		VaultID: id, Signer: signer, Amount: amount,
	})
	if err != nil {
		writeServiceError(w, "Deposit", err)
		return
	}

	writeJSON(w, "Deposit", http.StatusOK, BalanceResponse{Balance: balance})
}

// Withdraw обрабатывает POST /api/vaults/{id}/withdraw.
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, signer, amount, ok := parseAmountRequest(w, r, "Withdraw")
	if !ok {
		return
	}

	balance, err := h.vaultService.Withdraw(r.Context(), services.WithdrawRequest{
		VaultID: id, Signer: signer, Amount: amount,
	})
	if err != nil {
		writeServiceError(w, "Withdraw", err)
		return
	}

	writeJSON(w, "Withdraw", http.StatusOK, BalanceResponse{Balance: balance})
}

// Close обрабатывает DELETE /api/vaults/{id}.
func (h *VaultHandler) Close(w http.ResponseWriter, r *http.Request) {
	signer, ok := signerFromRequest(w, r, "Close")
	if !ok {
		return
	}
	id, ok := vaultIDFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.vaultService.Close(r.Context(), services.CloseRequest{VaultID: id, Signer: signer}); err != nil {
		writeServiceError(w, "Close", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseAmountRequest(
	w http.ResponseWriter,
	r *http.Request,
	op string,
) (models.VaultID, models.Identity, models.Amount, bool) {
	signer, ok := signerFromRequest(w, r, op)
	if !ok {
		return uuid.Nil, models.Identity{}, 0, false
	}
	id, ok := vaultIDFromRequest(w, r)
	if !ok {
		return uuid.Nil, models.Identity{}, 0, false
	}

	var req AmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		log.Debug().Str("component", "VaultHandler:"+op).Err(err).Msg("Неверное тело запроса")
		writeDecodeError(w, err)
		return uuid.Nil, models.Identity{}, 0, false
	}
	if req.Amount == nil {
		log.Debug().Str("component", "VaultHandler:"+op).Msg("В запросе нет суммы")
		http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
		return uuid.Nil, models.Identity{}, 0, false
	}
	return id, signer, *req.Amount, true
}

// decodeJSON читает из тела ровно один JSON-объект не длиннее MaxRequestBodySize.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	switch err := dec.Decode(&struct{}{}); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", errTrailingData, err)
	default:
		return errTrailingData
	}
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, "Слишком большое тело запроса", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "Неверный формат запроса", http.StatusBadRequest)
}

func signerFromRequest(w http.ResponseWriter, r *http.Request, op string) (models.Identity, bool) {
	signer, ok := middleware.GetSignerFromContext(r.Context())
	if !ok {
		log.Error().Str("component", "VaultHandler:"+op).Msg("Не удалось получить подписанта из контекста")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return models.Identity{}, false
	}
	return signer, true
}

func vaultIDFromRequest(w http.ResponseWriter, r *http.Request) (models.VaultID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, VaultIDParam))
	if err != nil {
		http.Error(w, "Неверный ID хранилища", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError переводит ошибку сервиса в HTTP-статус.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, services.ErrVaultNotFound):
		http.Error(w, "Хранилище не найдено", http.StatusNotFound)
	case errors.Is(err, services.ErrVaultExists):
		http.Error(w, "Хранилище с таким ID уже существует", http.StatusConflict)
	case errors.Is(err, services.ErrUnauthorized):
		http.Error(w, "Доступ запрещен", http.StatusForbidden)
	case errors.Is(err, services.ErrInsufficientBalance):
		http.Error(w, "Недостаточно средств", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrOverflow):
		http.Error(w, "Переполнение баланса", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrInvalidIdentity):
		http.Error(w, "Некорректный идентификатор владельца", http.StatusBadRequest)
	case errors.Is(err, services.ErrInvalidVaultID):
		http.Error(w, "Неверный ID хранилища", http.StatusBadRequest)
	default:
		log.Error().Str("component", "VaultHandler:"+op).Err(err).Msg("Внутренняя ошибка")
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, op string, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Str("component", "VaultHandler:"+op).Err(err).Msg("Ошибка кодирования ответа")
	}
}
