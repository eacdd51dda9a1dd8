// Package logging настраивает zerolog для сервера.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AppName попадает в поле app каждой записи.
const AppName = "gophvault"

// ParseLevel разбирает уровень логирования. Пустая строка означает info.
func ParseLevel(raw string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off", "none":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("неизвестный уровень логирования %q", raw)
	}
}

// New создает логгер с временной меткой и полем app.
func New(level zerolog.Level, w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", AppName).Logger()
}

// Setup создает консольный логгер в stdout и устанавливает его глобальным.
func Setup(rawLevel string) (zerolog.Logger, error) {
	level, err := ParseLevel(rawLevel)
	if err != nil {
		return zerolog.Logger{}, err
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	logger := New(level, output)
	log.Logger = logger
	return logger, nil
}
