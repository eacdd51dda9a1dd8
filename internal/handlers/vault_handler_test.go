package handlers_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/gophvault/internal/handlers"
	"github.com/maynagashev/gophvault/internal/middleware"
	"github.com/maynagashev/gophvault/internal/models"
	"github.com/maynagashev/gophvault/internal/repository"
	"github.com/maynagashev/gophvault/internal/services"
)

// MockVaultService - мок VaultService.
type MockVaultService struct {
	mock.Mock
}

func (m *MockVaultService) Create(ctx context.Context, req services.CreateRequest) (models.VaultID, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.VaultID), args.Error(1) //nolint:errcheck // Ошибки кастования в моках приемлемы
}

func (m *MockVaultService) Deposit(ctx context.Context, req services.DepositRequest) (models.Amount, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.Amount), args.Error(1) //nolint:errcheck // Ошибки кастования в моках приемлемы
}

func (m *MockVaultService) Withdraw(ctx context.Context, req services.WithdrawRequest) (models.Amount, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(models.Amount), args.Error(1) //nolint:errcheck // Ошибки кастования в моках приемлемы
}

func (m *MockVaultService) Close(ctx context.Context, req services.CloseRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockVaultService) Get(ctx context.Context, id models.VaultID) (*models.VaultView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VaultView), args.Error(1) //nolint:errcheck // Ошибки кастования в моках приемлемы
}

func newIdentity(t *testing.T) (ed25519.PrivateKey, models.Identity) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := models.IdentityFromPublicKey(pub)
	require.NoError(t, err)
	return priv, id
}

// newRouter собирает маршруты так же, как сервер, но без общих middleware.
func newRouter(h *handlers.VaultHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/vaults", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticator)
			r.Post("/{id}/deposit", h.Deposit)
			r.Post("/{id}/withdraw", h.Withdraw)
			r.Delete("/{id}", h.Close)
		})
	})
	return r
}

// withSigner эмулирует работу Authenticator для прямого вызова обработчика.
func withSigner(req *http.Request, signer models.Identity, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(handlers.VaultIDParam, id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.SignerKey, signer)
	return req.WithContext(ctx)
}

func TestVaultHandler_Create(t *testing.T) {
	_, owner := newIdentity(t)
	id := uuid.New()

	tests := []struct {
		name           string
		body           string
		setupMock      func(m *MockVaultService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "Успешное создание",
			body: `{"owner":"` + owner.String() + `"}`,
			setupMock: func(m *MockVaultService) {
				m.On("Create", mock.Anything, services.CreateRequest{Owner: owner}).Return(id, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedBody:   `{"id":"` + id.String() + `"}`,
		},
		{
			name: "Заданный ID уже занят",
			body: `{"owner":"` + owner.String() + `","id":"` + id.String() + `"}`,
			setupMock: func(m *MockVaultService) {
				m.On("Create", mock.Anything, services.CreateRequest{ID: &id, Owner: owner}).
					Return(uuid.Nil, services.ErrVaultExists)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   "Хранилище с таким ID уже существует",
		},
		{
			name:           "Невалидный владелец",
			body:           `{"owner":"abc"}`,
			setupMock:      func(*MockVaultService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Неверный формат запроса",
		},
		{
			name:           "Битый JSON",
			body:           `{`,
			setupMock:      func(*MockVaultService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Неверный формат запроса",
		},
		{
			name: "Владелец не задан",
			body: `{}`,
			setupMock: func(m *MockVaultService) {
				m.On("Create", mock.Anything, services.CreateRequest{}).
					Return(uuid.Nil, services.ErrInvalidIdentity)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Некорректный идентификатор владельца",
		},
		{
			name: "Нулевой ID",
			body: `{"owner":"` + owner.String() + `","id":"` + uuid.Nil.String() + `"}`,
			setupMock: func(m *MockVaultService) {
				nilID := uuid.Nil
				m.On("Create", mock.Anything, services.CreateRequest{ID: &nilID, Owner: owner}).
					Return(uuid.Nil, services.ErrInvalidVaultID)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Неверный ID хранилища",
		},
		{
			name:           "Второй объект после первого",
			body:           `{"owner":"` + owner.String() + `"}{"owner":"` + owner.String() + `"}`,
			setupMock:      func(*MockVaultService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Неверный формат запроса",
		},
		{
			name: "Слишком большое тело",
			body: `{"owner":"` + owner.String() + `","note":"` +
				strings.Repeat("a", handlers.MaxRequestBodySize) + `"}`,
			setupMock:      func(*MockVaultService) {},
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody:   "Слишком большое тело запроса",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockVaultService)
			tt.setupMock(svc)
			h := handlers.NewVaultHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/vaults", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.Create(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedBody, strings.TrimSpace(rr.Body.String()))
			svc.AssertExpectations(t)
		})
	}
}

func TestVaultHandler_Get(t *testing.T) {
	_, owner := newIdentity(t)
	id := uuid.New()

	t.Run("Успешное чтение", func(t *testing.T) {
		svc := new(MockVaultService)
		svc.On("Get", mock.Anything, id).Return(&models.VaultView{ID: id, Owner: owner, Balance: 5}, nil)

		rr := httptest.NewRecorder()
		newRouter(handlers.NewVaultHandler(svc)).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vaults/"+id.String(), nil))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		var view models.VaultView
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
		assert.Equal(t, owner, view.Owner)
		assert.Equal(t, models.Amount(5), view.Balance)
	})

	t.Run("Не найдено", func(t *testing.T) {
		svc := new(MockVaultService)
		svc.On("Get", mock.Anything, id).Return(nil, services.ErrVaultNotFound)

		rr := httptest.NewRecorder()
		newRouter(handlers.NewVaultHandler(svc)).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vaults/"+id.String(), nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Неверный ID", func(t *testing.T) {
		svc := new(MockVaultService)
		rr := httptest.NewRecorder()
		newRouter(handlers.NewVaultHandler(svc)).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vaults/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Неверный ID хранилища", strings.TrimSpace(rr.Body.String()))
		svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})
}

func TestVaultHandler_Withdraw_ErrorMapping(t *testing.T) {
	_, signer := newIdentity(t)
	id := uuid.New()
	req := services.WithdrawRequest{VaultID: id, Signer: signer, Amount: 10}

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "Не найдено", err: services.ErrVaultNotFound, expectedStatus: http.StatusNotFound},
		{name: "Чужой подписант", err: services.ErrUnauthorized, expectedStatus: http.StatusForbidden},
		{
			name:           "Недостаточно средств",
			err:            services.ErrInsufficientBalance,
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{name: "Внутренняя ошибка", err: errors.New("db down"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockVaultService)
			svc.On("Withdraw", mock.Anything, req).Return(models.Amount(0), tt.err)
			h := handlers.NewVaultHandler(svc)

			httpReq := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":10}`))
			rr := httptest.NewRecorder()
			h.Withdraw(rr, withSigner(httpReq, signer, id.String()))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestVaultHandler_Deposit(t *testing.T) {
	_, signer := newIdentity(t)
	id := uuid.New()

	tests := []struct {
		name           string
		body           string
		setupMock      func(m *MockVaultService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "Успешное пополнение",
			body: `{"amount":18446744073709551615}`,
			setupMock: func(m *MockVaultService) {
				m.On("Deposit", mock.Anything, services.DepositRequest{
					VaultID: id, Signer: signer, Amount: 18446744073709551615,
				}).Return(models.Amount(18446744073709551615), nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"balance":18446744073709551615}`,
		},
		{
			name: "Переполнение",
			body: `{"amount":1}`,
			setupMock: func(m *MockVaultService) {
				m.On("Deposit", mock.Anything, mock.Anything).Return(models.Amount(0), services.ErrOverflow)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   "Переполнение баланса",
		},
		{
			name:           "Нет суммы",
			body:           `{}`,
			setupMock:      func(*MockVaultService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Неверный формат запроса",
		},
		{
			name:           "Отрицательная сумма",
			body:           `{"amount":-1}`,
			setupMock:      func(*MockVaultService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Неверный формат запроса",
		},
		{
			name:           "Мусор после объекта",
			body:           `{"amount":1} garbage`,
			setupMock:      func(*MockVaultService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Неверный формат запроса",
		},
		{
			name:           "Две суммы подряд",
			body:           `{"amount":1}{"amount":2}`,
			setupMock:      func(*MockVaultService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Неверный формат запроса",
		},
		{
			name:           "Пробелы сверх лимита",
			body:           strings.Repeat(" ", handlers.MaxRequestBodySize) + `{"amount":1}`,
			setupMock:      func(*MockVaultService) {},
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody:   "Слишком большое тело запроса",
		},
		{
			name: "Перевод строки в конце допустим",
			body: "{\"amount\":7}\n",
			setupMock: func(m *MockVaultService) {
				m.On("Deposit", mock.Anything, services.DepositRequest{VaultID: id, Signer: signer, Amount: 7}).
					Return(models.Amount(7), nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"balance":7}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockVaultService)
			tt.setupMock(svc)
			h := handlers.NewVaultHandler(svc)

			httpReq := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.Deposit(rr, withSigner(httpReq, signer, id.String()))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedBody, strings.TrimSpace(rr.Body.String()))
			svc.AssertExpectations(t)
		})
	}
}

func TestVaultHandler_NoSignerInContext(t *testing.T) {
	svc := new(MockVaultService)
	h := handlers.NewVaultHandler(svc)

	rr := httptest.NewRecorder()
	h.Close(rr, httptest.NewRequest(http.MethodDelete, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	svc.AssertNotCalled(t, "Close", mock.Anything, mock.Anything)
}

// TestVaultHandler_EndToEnd прогоняет полный жизненный цикл через роутер,
// middleware аутентификации и сервис поверх хранилища в памяти.
func TestVaultHandler_EndToEnd(t *testing.T) {
	alicePriv, alice := newIdentity(t)
	malloryPriv, _ := newIdentity(t)
	aliceToken, err := middleware.IssueSignerToken(alicePriv, time.Hour)
	require.NoError(t, err)
	malloryToken, err := middleware.IssueSignerToken(malloryPriv, time.Hour)
	require.NoError(t, err)

	svc := services.NewVaultService(repository.NewMemoryVaultRepository(), services.WithLogger(zerolog.Nop()))
	router := newRouter(handlers.NewVaultHandler(svc))

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/api/vaults/", "", `{"owner":"`+alice.String()+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created handlers.CreateVaultResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	base := "/api/vaults/" + created.ID.String()

	rr = do(http.MethodPost, base+"/deposit", "", `{"amount":100}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(http.MethodPost, base+"/deposit", aliceToken, `{"amount":100}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"balance":100}`, rr.Body.String())

	rr = do(http.MethodPost, base+"/withdraw", malloryToken, `{"amount":1}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(http.MethodPost, base+"/withdraw", aliceToken, `{"amount":101}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = do(http.MethodPost, base+"/withdraw", aliceToken, `{"amount":40}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"balance":60}`, rr.Body.String())

	rr = do(http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"`+created.ID.String()+`","owner":"`+alice.String()+`","balance":60}`, rr.Body.String())

	rr = do(http.MethodDelete, base, malloryToken, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(http.MethodDelete, base, aliceToken, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(http.MethodGet, base, "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(http.MethodDelete, base, aliceToken, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
