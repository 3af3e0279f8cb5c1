// Package logger builds the application-wide structured logger.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/steelstore-ledger/internal/config"
)

// NewLogger returns a JSON slog logger at the configured level, tagged
// with the application name. Source locations are attached only at debug
// level to keep production log lines small.
func NewLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})

	logger := slog.New(handler)
	if cfg.Application.Name != "" {
		logger = logger.With("app", cfg.Application.Name)
	}

	logger.Info("logger initialized", "level", level)

	return logger
}
