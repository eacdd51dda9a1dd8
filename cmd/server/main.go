package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/maynagashev/gophvault/internal/config"
	"github.com/maynagashev/gophvault/internal/handlers"
	"github.com/maynagashev/gophvault/internal/logging"
	appmiddleware "github.com/maynagashev/gophvault/internal/middleware"
	"github.com/maynagashev/gophvault/internal/repository"
	"github.com/maynagashev/gophvault/internal/services"
	"github.com/maynagashev/gophvault/internal/storage"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultInitTimeout     = 30 * time.Second
)

// Подменяются в тестах.
var (
	newPostgresDB  = repository.NewPostgresDB
	newMinioClient = func(ctx context.Context, cfg storage.MinioConfig) (storage.FileStorage, error) {
		return storage.NewMinioClient(ctx, cfg)
	}
)

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	db           *sqlx.DB // nil при хранении в памяти
	vaultRepo    repository.VaultRepository
	eventRepo    repository.EventRepository
	events       services.EventPublisher
	vaultHandler *handlers.VaultHandler
	eventHandler *handlers.EventHandler
}

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("Ошибка выполнения сервера")
		os.Exit(1)
	}
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}
	if _, err = logging.Setup(cfg.LogLevel); err != nil {
		return err
	}
	log.Info().Msg("Запуск сервера GophVault...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, defaultInitTimeout)
	deps, err := setupDependencies(initCtx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	defer func() {
		if deps.db != nil {
			if closeErr := deps.db.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Ошибка закрытия соединения с БД")
			}
		}
	}()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      setupRouter(deps.vaultHandler, deps.eventHandler),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.TLSEnabled() {
			log.Info().Str("addr", cfg.Addr).Str("cert", cfg.TLSCertFile).Msg("Запуск HTTPS-сервера")
			serveErr <- server.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
			return
		}
		log.Warn().Str("addr", cfg.Addr).Msg("TLS не настроен, запуск HTTP-сервера")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка запуска сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Получен сигнал остановки, завершаем работу...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancelShutdown()
	if err = server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	return nil
}

// setupDependencies выбирает хранилище записей, журнал и архив событий по конфигурации.
func setupDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.DatabaseDSN != "" {
		db, err := newPostgresDB(cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации БД: %w", err)
		}
		if err = repository.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		deps.db = db
		deps.vaultRepo = repository.NewPostgresVaultRepository(db)
		deps.eventRepo = repository.NewPostgresEventRepository(db)
		log.Info().Msg("Записи хранилищ хранятся в PostgreSQL")
	} else {
		deps.vaultRepo = repository.NewMemoryVaultRepository()
		deps.eventRepo = repository.NewMemoryEventRepository()
		log.Warn().Msg("DSN не задан, записи хранилищ хранятся в памяти процесса")
	}

	publishers := services.MultiPublisher{services.NewJournalPublisher(deps.eventRepo)}
	if cfg.Minio.Endpoint != "" {
		files, err := newMinioClient(ctx, storage.MinioConfig{
			Endpoint:        cfg.Minio.Endpoint,
			AccessKeyID:     cfg.Minio.AccessKey,
			SecretAccessKey: cfg.Minio.SecretKey,
			UseSSL:          cfg.Minio.UseSSL,
			BucketName:      cfg.Minio.Bucket,
			Region:          cfg.Minio.Region,
		})
		if err != nil {
			if deps.db != nil {
				if dbCloseErr := deps.db.Close(); dbCloseErr != nil {
					log.Error().Err(dbCloseErr).Msg("Ошибка закрытия соединения с БД при ошибке MinIO")
				}
			}
			return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
		}
		publishers = append(publishers, storage.NewEventArchive(files))
		log.Info().Str("bucket", cfg.Minio.Bucket).Msg("События архивируются в MinIO")
	}
	deps.events = publishers

	vaultService := services.NewVaultService(deps.vaultRepo,
		services.WithEventPublisher(deps.events),
		services.WithLogger(log.Logger),
	)
	deps.vaultHandler = handlers.NewVaultHandler(vaultService)
	deps.eventHandler = handlers.NewEventHandler(services.NewHistoryService(deps.eventRepo))
	return deps, nil
}

// setupRouter настраивает и возвращает роутер chi.
func setupRouter(vaultHandler *handlers.VaultHandler, eventHandler *handlers.EventHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	r.Route("/api/vaults", func(r chi.Router) {
		// Создание и чтение не требуют подписанта
		r.Post("/", vaultHandler.Create)
		r.Get("/{"+handlers.VaultIDParam+"}", vaultHandler.Get)
		r.Get("/{"+handlers.VaultIDParam+"}/events", eventHandler.List)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Authenticator)
			r.Post("/{"+handlers.VaultIDParam+"}/deposit", vaultHandler.Deposit)
			r.Post("/{"+handlers.VaultIDParam+"}/withdraw", vaultHandler.Withdraw)
			r.Delete("/{"+handlers.VaultIDParam+"}", vaultHandler.Close)
		})
	})
	return r
}
