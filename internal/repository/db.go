package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Драйвер PostgreSQL, импортируем для регистрации
	"github.com/rs/zerolog/log"
)

const (
	maxOpenConns    = 25              // Максимальное количество открытых соединений
	maxIdleConns    = 25              // Максимальное количество простаивающих соединений
	connMaxLifetime = 5 * time.Minute // Максимальное время жизни соединения
	connMaxIdleTime = 5 * time.Minute // Максимальное время простоя соединения
)

// schemaSQL создает таблицы хранилищ и журнала событий. Баланс ограничен диапазоном uint64.
// Записи журнала не ссылаются на vaults: история переживает закрытие хранилища.
// Ревизии берутся из общей последовательности внутри транзакции, удерживающей строку.
const schemaSQL = `CREATE SEQUENCE IF NOT EXISTS vault_revision_seq;
CREATE TABLE IF NOT EXISTS vaults (
	id         UUID PRIMARY KEY,
	owner      BYTEA NOT NULL CHECK (octet_length(owner) = 32),
	balance    NUMERIC(20, 0) NOT NULL DEFAULT 0
	           CHECK (balance >= 0 AND balance <= 18446744073709551615),
	revision   BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS vault_events (
	seq      BIGSERIAL PRIMARY KEY,
	revision BIGINT NOT NULL,
	vault_id UUID NOT NULL,
	kind     TEXT NOT NULL,
	owner    BYTEA NOT NULL,
	amount   NUMERIC(20, 0) NOT NULL DEFAULT 0,
	balance  NUMERIC(20, 0) NOT NULL DEFAULT 0,
	residual NUMERIC(20, 0) NOT NULL DEFAULT 0,
	at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS vault_events_vault_id_idx ON vault_events (vault_id, revision DESC)`

// NewPostgresDB создает и возвращает новое подключение к PostgreSQL.
func NewPostgresDB(dsn string) (*sqlx.DB, error) {
	log.Info().Msg("Подключение к PostgreSQL...")

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Проверка соединения
	if err = db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Ошибка закрытия соединения с БД после неудачного пинга")
		}
		return nil, fmt.Errorf("ошибка проверки соединения с БД (ping): %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	log.Info().Msg("Подключение к PostgreSQL успешно установлено.")
	return db, nil
}

// EnsureSchema создает таблицы, если их еще нет.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ошибка создания схемы БД: %w", err)
	}
	return nil
}
