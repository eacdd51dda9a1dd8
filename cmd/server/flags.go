package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/maynagashev/gophvault/internal/config"
)

const (
	// Переменные окружения.
	envConfigFile     = "CONFIG_FILE"
	envServerAddr     = "SERVER_ADDR"
	envTLSCertFile    = "TLS_CERT_FILE"
	envTLSKeyFile     = "TLS_KEY_FILE"
	envDatabaseDSN    = "DATABASE_DSN"
	envLogLevel       = "LOG_LEVEL"
	envMinioEndpoint  = "MINIO_ENDPOINT"
	envMinioUser      = "MINIO_USER"
	envMinioPassword  = "MINIO_PASSWORD" //nolint:gosec // Это имя переменной окружения
	envMinioBucket    = "MINIO_BUCKET"
	envMinioUseSSL    = "MINIO_USE_SSL"
	defaultConfigHint = "gophvault.toml"
)

// parseFlags собирает конфигурацию: флаги > переменные окружения > файл конфигурации > значения по умолчанию.
func parseFlags() (*config.Config, error) {
	var configFile, addr, certFile, keyFile, dsn, logLevel string

	flag.StringVar(&configFile, "config", "",
		fmt.Sprintf("Путь к TOML-файлу конфигурации, например %s (env: %s)", defaultConfigHint, envConfigFile))
	flag.StringVar(&addr, "addr", "",
		fmt.Sprintf("Адрес HTTP(S)-сервера (env: %s, default: %s)", envServerAddr, config.DefaultAddr))
	flag.StringVar(&certFile, "cert-file", "",
		fmt.Sprintf("Путь к файлу TLS-сертификата (env: %s)", envTLSCertFile))
	flag.StringVar(&keyFile, "key-file", "",
		fmt.Sprintf("Путь к файлу TLS-ключа (env: %s)", envTLSKeyFile))
	flag.StringVar(&dsn, "database-dsn", "",
		fmt.Sprintf("Строка подключения к PostgreSQL; пусто - хранение в памяти (env: %s)", envDatabaseDSN))
	flag.StringVar(&logLevel, "log-level", "",
		fmt.Sprintf("Уровень логирования (env: %s, default: %s)", envLogLevel, config.DefaultLogLevel))

	flag.Parse()

	if configFile == "" {
		configFile = os.Getenv(envConfigFile)
	}

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Переменные окружения переопределяют файл
	setFromEnv(&cfg.Addr, envServerAddr)
	setFromEnv(&cfg.TLSCertFile, envTLSCertFile)
	setFromEnv(&cfg.TLSKeyFile, envTLSKeyFile)
	setFromEnv(&cfg.DatabaseDSN, envDatabaseDSN)
	setFromEnv(&cfg.LogLevel, envLogLevel)
	setFromEnv(&cfg.Minio.Endpoint, envMinioEndpoint)
	setFromEnv(&cfg.Minio.AccessKey, envMinioUser)
	setFromEnv(&cfg.Minio.SecretKey, envMinioPassword)
	setFromEnv(&cfg.Minio.Bucket, envMinioBucket)
	if value, ok := os.LookupEnv(envMinioUseSSL); ok {
		cfg.Minio.UseSSL = value == "true" || value == "1"
	}

	// Флаги переопределяют все остальное
	setIfNotEmpty(&cfg.Addr, addr)
	setIfNotEmpty(&cfg.TLSCertFile, certFile)
	setIfNotEmpty(&cfg.TLSKeyFile, keyFile)
	setIfNotEmpty(&cfg.DatabaseDSN, dsn)
	setIfNotEmpty(&cfg.LogLevel, logLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}
	return &cfg, nil
}

func setFromEnv(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
