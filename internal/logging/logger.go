package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/stefanh12/holfuy/internal/config"
)

// New builds the process logger: colored text in development, JSON otherwise.
func New(cfg *config.AppConfig, version string) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg, version)
}

// NewWithWriter is New writing to w.
func NewWithWriter(w io.Writer, cfg *config.AppConfig, version string) *slog.Logger {
	level := ParseLevel(cfg.LogLevel)

	if cfg.IsDev() {
		h := tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", "holfuy")
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(h).With(
		"app", "holfuy",
		"version", version,
		"env", cfg.Env,
		"group", cfg.Group,
	)
}

// ParseLevel maps a level name to a slog.Level; unknown names yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
