package services

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/maynagashev/gophvault/internal/models"
	"github.com/maynagashev/gophvault/internal/repository"
)

// CreateRequest - запрос на создание хранилища.
// ID может быть задан вызывающей стороной; иначе выделяется аллокатором.
// Нулевой UUID отклоняется с ErrInvalidVaultID.
type CreateRequest struct {
	ID    *models.VaultID
	Owner models.Identity
}

// DepositRequest - запрос на пополнение.
type DepositRequest struct {
	VaultID models.VaultID
	Signer  models.Identity
	Amount  models.Amount
}

// WithdrawRequest - запрос на снятие.
type WithdrawRequest struct {
	VaultID models.VaultID
	Signer  models.Identity
	Amount  models.Amount
}

// CloseRequest - запрос на закрытие хранилища.
type CloseRequest struct {
	VaultID models.VaultID
	Signer  models.Identity
}

// VaultService определяет операции над хранилищами.
type VaultService interface {
	Create(ctx context.Context, req CreateRequest) (models.VaultID, error)
	Deposit(ctx context.Context, req DepositRequest) (models.Amount, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (models.Amount, error)
	Close(ctx context.Context, req CloseRequest) error
	Get(ctx context.Context, id models.VaultID) (*models.VaultView, error)
}

// IDAllocator выделяет идентификаторы новых хранилищ.
type IDAllocator func() models.VaultID

// Option настраивает vaultService.
type Option func(*vaultService)

// WithIDAllocator задает аллокатор ID (по умолчанию uuid.New).
func WithIDAllocator(alloc IDAllocator) Option {
	return func(s *vaultService) { s.allocate = alloc }
}

// WithEventPublisher задает получателя событий.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *vaultService) { s.events = p }
}

// WithLogger задает логгер сервиса.
func WithLogger(l zerolog.Logger) Option {
	return func(s *vaultService) { s.logger = l }
}

var _ VaultService = (*vaultService)(nil) // Проверка соответствия интерфейсу

type vaultService struct {
	vaultRepo repository.VaultRepository
	allocate  IDAllocator
	events    EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewVaultService создает новый экземпляр сервиса хранилищ.
func NewVaultService(vaultRepo repository.VaultRepository, opts ...Option) VaultService {
	s := &vaultService{
		vaultRepo: vaultRepo,
		allocate:  uuid.New,
		events:    NopPublisher{},
		logger:    log.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "VaultService").Logger()
	return s
}

// Create создает хранилище с нулевым балансом. Авторизация не требуется.
func (s *vaultService) Create(ctx context.Context, req CreateRequest) (models.VaultID, error) {
	if req.Owner.IsZero() {
		return uuid.Nil, fmt.Errorf("%w: владелец не задан", ErrInvalidIdentity)
	}
	var id models.VaultID
	if req.ID != nil {
		id = *req.ID
	} else {
		id = s.allocate()
	}
	if id == uuid.Nil {
		return uuid.Nil, ErrInvalidVaultID
	}

	vault := &models.Vault{ID: id, Owner: req.Owner, Balance: 0}
	if err := s.vaultRepo.InsertVault(ctx, vault); err != nil {
		if errors.Is(err, repository.ErrVaultExists) {
			s.logger.Warn().Stringer("vault_id", id).Msg("Попытка создать хранилище с занятым ID")
			return uuid.Nil, ErrVaultExists
		}
		s.logger.Error().Err(err).Stringer("vault_id", id).Msg("Ошибка репозитория при создании хранилища")
		return uuid.Nil, fmt.Errorf("внутренняя ошибка при создании хранилища: %w", err)
	}

	s.logger.Info().Stringer("vault_id", id).Stringer("owner", req.Owner).Msg("Хранилище создано")
	s.publish(ctx, models.VaultEvent{
		Revision: vault.Revision, Kind: models.EventCreated, VaultID: id, Owner: req.Owner,
	})
	return id, nil
}

// Deposit увеличивает баланс. Пополнять может только владелец; нулевая сумма
// ничего не меняет, но тоже требует авторизации.
func (s *vaultService) Deposit(ctx context.Context, req DepositRequest) (models.Amount, error) {
	vault, err := s.vaultRepo.UpdateVault(ctx, req.VaultID, func(v *models.Vault) error {
		if !Authorize(v, req.Signer) {
			return ErrUnauthorized
		}
		next, err := checkedAdd(v.Balance, req.Amount)
		if err != nil {
			return err
		}
		v.Balance = next
		return nil
	})
	if err != nil {
		return 0, s.mapError(err, "deposit", req.VaultID, req.Signer)
	}

	s.logger.Info().Stringer("vault_id", req.VaultID).Uint64("amount", uint64(req.Amount)).
		Uint64("balance", uint64(vault.Balance)).Msg("Пополнение выполнено")
	s.publish(ctx, models.VaultEvent{
		Revision: vault.Revision, Kind: models.EventDeposited, VaultID: vault.ID, Owner: vault.Owner,
		Amount: req.Amount, Balance: vault.Balance,
	})
	return vault.Balance, nil
}

// Withdraw уменьшает баланс. Сумма больше баланса отклоняется с ErrInsufficientBalance;
// проверка и списание выполняются под одной блокировкой записи.
func (s *vaultService) Withdraw(ctx context.Context, req WithdrawRequest) (models.Amount, error) {
	vault, err := s.vaultRepo.UpdateVault(ctx, req.VaultID, func(v *models.Vault) error {
		if !Authorize(v, req.Signer) {
			return ErrUnauthorized
		}
		if req.Amount > v.Balance {
			return ErrInsufficientBalance
		}
		v.Balance -= req.Amount
		return nil
	})
	if err != nil {
		return 0, s.mapError(err, "withdraw", req.VaultID, req.Signer)
	}

	s.logger.Info().Stringer("vault_id", req.VaultID).Uint64("amount", uint64(req.Amount)).
		Uint64("balance", uint64(vault.Balance)).Msg("Снятие выполнено")
	s.publish(ctx, models.VaultEvent{
		Revision: vault.Revision, Kind: models.EventWithdrawn, VaultID: vault.ID, Owner: vault.Owner,
		Amount: req.Amount, Balance: vault.Balance,
	})
	return vault.Balance, nil
}

// Close удаляет хранилище при любом балансе. Остаток не переводится и считается
// утраченным; он попадает в событие closed и в лог.
func (s *vaultService) Close(ctx context.Context, req CloseRequest) error {
	vault, err := s.vaultRepo.DeleteVault(ctx, req.VaultID, func(v *models.Vault) error {
		if !Authorize(v, req.Signer) {
			return ErrUnauthorized
		}
		return nil
	})
	if err != nil {
		return s.mapError(err, "close", req.VaultID, req.Signer)
	}

	ev := s.logger.Info()
	if vault.Balance > 0 {
		ev = s.logger.Warn()
	}
	ev.Stringer("vault_id", req.VaultID).Uint64("residual", uint64(vault.Balance)).Msg("Хранилище закрыто")
	s.publish(ctx, models.VaultEvent{
		Revision: vault.Revision, Kind: models.EventClosed, VaultID: vault.ID, Owner: vault.Owner,
		Residual: vault.Balance,
	})
	return nil
}

// Get возвращает владельца и баланс. Авторизация не требуется.
func (s *vaultService) Get(ctx context.Context, id models.VaultID) (*models.VaultView, error) {
	vault, err := s.vaultRepo.GetVault(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrVaultNotFound) {
			return nil, ErrVaultNotFound
		}
		s.logger.Error().Err(err).Stringer("vault_id", id).Msg("Ошибка репозитория при чтении хранилища")
		return nil, fmt.Errorf("внутренняя ошибка при чтении хранилища: %w", err)
	}
	view := vault.View()
	return &view, nil
}

// mapError переводит ошибки репозитория в ошибки сервиса.
// Ошибки сервиса, возвращенные из fn, передаются как есть.
func (s *vaultService) mapError(err error, op string, id models.VaultID, signer models.Identity) error {
	switch {
	case errors.Is(err, repository.ErrVaultNotFound):
		s.logger.Debug().Str("op", op).Stringer("vault_id", id).Msg("Хранилище не найдено")
		return ErrVaultNotFound
	case errors.Is(err, ErrUnauthorized):
		s.logger.Warn().Str("op", op).Stringer("vault_id", id).Stringer("signer", signer).
			Msg("Подписант не является владельцем")
		return err
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrOverflow):
		s.logger.Info().Str("op", op).Stringer("vault_id", id).Err(err).Msg("Операция отклонена")
		return err
	default:
		s.logger.Error().Str("op", op).Stringer("vault_id", id).Err(err).Msg("Ошибка репозитория")
		return fmt.Errorf("внутренняя ошибка при выполнении %s: %w", op, err)
	}
}

// publish отправляет событие; ошибка публикации не влияет на уже зафиксированную операцию.
// Публикация идет после фиксации, поэтому порядок событий задает Revision, а не порядок вызовов.
func (s *vaultService) publish(ctx context.Context, event models.VaultEvent) {
	event.At = s.now()
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("kind", string(event.Kind)).Stringer("vault_id", event.VaultID).
			Msg("Не удалось опубликовать событие")
	}
}

// checkedAdd складывает суммы, возвращая ErrOverflow при выходе за диапазон uint64.
func checkedAdd(a, b models.Amount) (models.Amount, error) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return models.Amount(sum), nil
}

// Кастомные ошибки сервиса.
var (
	ErrVaultNotFound       = errors.New("хранилище не найдено")
	ErrVaultExists         = errors.New("хранилище с таким ID уже существует")
	ErrUnauthorized        = errors.New("подписант не является владельцем хранилища")
	ErrInsufficientBalance = errors.New("недостаточно средств")
	ErrOverflow            = errors.New("переполнение баланса")
	ErrInvalidIdentity     = models.ErrInvalidIdentity
	ErrInvalidVaultID      = errors.New("нулевой ID хранилища недопустим")
)
