package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/maynagashev/gophvault/internal/models"
)

const componentEventRepo = "EventRepo"

// EventRepository определяет журнал событий хранилищ.
type EventRepository interface {
	// AppendEvent записывает событие и заполняет event.Seq.
	AppendEvent(ctx context.Context, event *models.VaultEvent) error
	// ListEvents возвращает события хранилища в порядке убывания ревизии, начиная с offset.
	// Неположительный limit дает пустой список, отрицательный offset считается нулем.
	ListEvents(ctx context.Context, vaultID models.VaultID, limit, offset int) ([]models.VaultEvent, error)
}

// postgresEventRepository реализует EventRepository для PostgreSQL.
type postgresEventRepository struct {
	db *sqlx.DB
}

// NewPostgresEventRepository создает новый экземпляр журнала событий.
func NewPostgresEventRepository(db *sqlx.DB) EventRepository {
	return &postgresEventRepository{db: db}
}

// AppendEvent добавляет событие в таблицу vault_events.
func (r *postgresEventRepository) AppendEvent(ctx context.Context, event *models.VaultEvent) error {
	query := `INSERT INTO vault_events (revision, vault_id, kind, owner, amount, balance, residual, at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`

	err := r.db.QueryRowxContext(ctx, query,
		event.Revision, event.VaultID, string(event.Kind), event.Owner, event.Amount, event.Balance, event.Residual, event.At,
	).Scan(&event.Seq)
	if err != nil {
		log.Error().Str("component", componentEventRepo).Err(err).Stringer("vault_id", event.VaultID).
			Str("kind", string(event.Kind)).Msg("Ошибка записи события")
		return fmt.Errorf("ошибка выполнения запроса на запись события: %w", err)
	}

	log.Debug().Str("component", componentEventRepo).Int64("seq", event.Seq).Int64("revision", event.Revision).
		Stringer("vault_id", event.VaultID).Str("kind", string(event.Kind)).Msg("Событие записано")
	return nil
}

// ListEvents возвращает страницу событий хранилища.
func (r *postgresEventRepository) ListEvents(
	ctx context.Context,
	vaultID models.VaultID,
	limit,
	offset int,
) ([]models.VaultEvent, error) {
	limit, offset = normalizePage(limit, offset)
	if limit == 0 {
		return []models.VaultEvent{}, nil
	}

	// Сначала новые по порядку фиксаций, а не по порядку записи в журнал
	query := `SELECT seq, revision, vault_id, kind, owner, amount, balance, residual, at
	          FROM vault_events
	          WHERE vault_id=$1
	          ORDER BY revision DESC, seq DESC
	          LIMIT $2 OFFSET $3`

	events := make([]models.VaultEvent, 0, limit)
	if err := r.db.SelectContext(ctx, &events, query, vaultID, limit, offset); err != nil {
		log.Error().Str("component", componentEventRepo).Err(err).Stringer("vault_id", vaultID).
			Msg("Ошибка при получении списка событий")
		return nil, fmt.Errorf("ошибка выполнения запроса на получение списка событий: %w", err)
	}

	log.Debug().Str("component", componentEventRepo).Stringer("vault_id", vaultID).
		Int("count", len(events)).Int("limit", limit).Int("offset", offset).Msg("Получен список событий")
	return events, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
