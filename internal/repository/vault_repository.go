package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/maynagashev/gophvault/internal/models"
)

// Коды ошибок PostgreSQL.
const (
	pgUniqueViolationCode = "23505"
)

const componentVaultRepo = "VaultRepo"

// VaultRepository определяет хранилище записей vault, ключ - идентификатор записи.
//
// Все операции атомарны в пределах одной записи. Функции fn в UpdateVault и DeleteVault
// выполняются, пока запись захвачена эксклюзивно: другие операции над тем же ID не могут
// вклиниться между проверкой и изменением. Ошибка fn отменяет операцию без изменений.
type VaultRepository interface {
	GetVault(ctx context.Context, id models.VaultID) (*models.Vault, error)
	InsertVault(ctx context.Context, vault *models.Vault) error
	UpdateVault(ctx context.Context, id models.VaultID, fn func(*models.Vault) error) (*models.Vault, error)
	// DeleteVault удаляет запись и возвращает ее последнее состояние. fn может быть nil.
	DeleteVault(ctx context.Context, id models.VaultID, fn func(*models.Vault) error) (*models.Vault, error)
}

// postgresVaultRepository реализует VaultRepository для PostgreSQL.
type postgresVaultRepository struct {
	db *sqlx.DB
}

// NewPostgresVaultRepository создает новый экземпляр репозитория хранилищ.
func NewPostgresVaultRepository(db *sqlx.DB) VaultRepository {
	return &postgresVaultRepository{db: db}
}

// GetVault находит запись по ID.
func (r *postgresVaultRepository) GetVault(ctx context.Context, id models.VaultID) (*models.Vault, error) {
	query := `SELECT id, owner, balance, revision, created_at, updated_at FROM vaults WHERE id=$1`
	var vault models.Vault

	err := r.db.GetContext(ctx, &vault, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug().Str("component", componentVaultRepo).Stringer("vault_id", id).Msg("Хранилище не найдено")
			return nil, ErrVaultNotFound
		}
		log.Error().Str("component", componentVaultRepo).Err(err).Stringer("vault_id", id).
			Msg("Ошибка при поиске хранилища")
		return nil, fmt.Errorf("ошибка выполнения запроса на получение хранилища: %w", err)
	}

	return &vault, nil
}

// InsertVault создает новую запись. Занятый ID возвращает ErrVaultExists.
// Ревизия назначается отдельным запросом после вставки: если INSERT ждал фиксации
// удаления того же ID, новая ревизия окажется больше ревизии удаления.
func (r *postgresVaultRepository) InsertVault(ctx context.Context, vault *models.Vault) error {
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `INSERT INTO vaults (id, owner, balance) VALUES ($1, $2, $3) RETURNING created_at`
		if err := tx.QueryRowxContext(ctx, query, vault.ID, vault.Owner, vault.Balance).
			Scan(&vault.CreatedAt); err != nil {
			var pgErr *pq.Error
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
				log.Warn().Str("component", componentVaultRepo).Stringer("vault_id", vault.ID).
					Msg("Хранилище с таким ID уже существует")
				return ErrVaultExists
			}
			return fmt.Errorf("ошибка выполнения запроса на создание хранилища: %w", err)
		}

		query = `UPDATE vaults SET revision=nextval('vault_revision_seq') WHERE id=$1 RETURNING revision, updated_at`
		if err := tx.QueryRowxContext(ctx, query, vault.ID).Scan(&vault.Revision, &vault.UpdatedAt); err != nil {
			return fmt.Errorf("ошибка выполнения запроса на назначение ревизии: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrVaultExists) {
			log.Error().Str("component", componentVaultRepo).Err(err).Stringer("vault_id", vault.ID).
				Msg("Непредвиденная ошибка при создании хранилища")
		}
		return err
	}

	log.Debug().Str("component", componentVaultRepo).Stringer("vault_id", vault.ID).
		Int64("revision", vault.Revision).Msg("Хранилище создано")
	return nil
}

// UpdateVault блокирует строку (SELECT ... FOR UPDATE), применяет fn и сохраняет баланс
// с новой ревизией. Владелец не перезаписывается.
func (r *postgresVaultRepository) UpdateVault(
	ctx context.Context,
	id models.VaultID,
	fn func(*models.Vault) error,
) (*models.Vault, error) {
	var updated *models.Vault
	err := r.withLockedVault(ctx, id, func(tx *sqlx.Tx, vault *models.Vault) error {
		if err := fn(vault); err != nil {
			return err
		}
		query := `UPDATE vaults SET balance=$2, revision=nextval('vault_revision_seq'), updated_at=NOW()` +
			` WHERE id=$1 RETURNING revision, updated_at`
		if err := tx.QueryRowxContext(ctx, query, id, vault.Balance).
			Scan(&vault.Revision, &vault.UpdatedAt); err != nil {
			return fmt.Errorf("ошибка выполнения запроса на обновление хранилища: %w", err)
		}
		updated = vault
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteVault блокирует строку, проверяет fn и удаляет запись.
// Возвращенная запись содержит ревизию, выданную удалению.
func (r *postgresVaultRepository) DeleteVault(
	ctx context.Context,
	id models.VaultID,
	fn func(*models.Vault) error,
) (*models.Vault, error) {
	var deleted *models.Vault
	err := r.withLockedVault(ctx, id, func(tx *sqlx.Tx, vault *models.Vault) error {
		if fn != nil {
			if err := fn(vault); err != nil {
				return err
			}
		}
		query := `DELETE FROM vaults WHERE id=$1 RETURNING nextval('vault_revision_seq')`
		if err := tx.QueryRowxContext(ctx, query, id).Scan(&vault.Revision); err != nil {
			return fmt.Errorf("ошибка выполнения запроса на удаление хранилища: %w", err)
		}
		deleted = vault
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("component", componentVaultRepo).Stringer("vault_id", id).
		Int64("revision", deleted.Revision).Msg("Хранилище удалено")
	return deleted, nil
}

// withLockedVault выполняет fn в транзакции, удерживая блокировку строки id.
func (r *postgresVaultRepository) withLockedVault(
	ctx context.Context,
	id models.VaultID,
	fn func(tx *sqlx.Tx, vault *models.Vault) error,
) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := `SELECT id, owner, balance, revision, created_at, updated_at FROM vaults WHERE id=$1 FOR UPDATE`
		var vault models.Vault
		if err := tx.GetContext(ctx, &vault, query, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrVaultNotFound
			}
			return fmt.Errorf("ошибка выполнения запроса на блокировку хранилища: %w", err)
		}
		return fn(tx, &vault)
	})
}

// inTx выполняет fn в транзакции; ошибка fn откатывает транзакцию.
func (r *postgresVaultRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error().Str("component", componentVaultRepo).Err(rbErr).Msg("Ошибка отката транзакции")
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Кастомные ошибки репозитория.
var (
	ErrVaultNotFound = errors.New("хранилище не найдено")
	ErrVaultExists   = errors.New("хранилище с таким ID уже существует")
)
