// Package config загружает файл конфигурации сервера в формате TOML.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Значения по умолчанию.
const (
	DefaultAddr        = ":8443"
	DefaultLogLevel    = "info"
	DefaultMinioBucket = "gophvault-events"
)

// Config - конфигурация сервера.
type Config struct {
	Addr        string      `toml:"addr"`
	TLSCertFile string      `toml:"tls_cert_file"`
	TLSKeyFile  string      `toml:"tls_key_file"`
	DatabaseDSN string      `toml:"database_dsn"`
	LogLevel    string      `toml:"log_level"`
	Minio       MinioConfig `toml:"minio"`
}

// MinioConfig - параметры архива событий. Пустой Endpoint отключает архив.
type MinioConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Default возвращает конфигурацию по умолчанию: хранилище в памяти, без TLS и архива.
func Default() Config {
	return Config{
		Addr:     DefaultAddr,
		LogLevel: DefaultLogLevel,
		Minio:    MinioConfig{Bucket: DefaultMinioBucket},
	}
}

// Load читает TOML-файл поверх значений по умолчанию.
// Неизвестные ключи считаются ошибкой.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("неизвестные ключи в %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate проверяет согласованность параметров.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("не указан адрес сервера")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS требует одновременно файл сертификата и файл ключа")
	}
	if c.Minio.Endpoint != "" && c.Minio.Bucket == "" {
		return errors.New("для архива событий не указан бакет MinIO")
	}
	return nil
}

// TLSEnabled сообщает, что сервер должен слушать HTTPS.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
