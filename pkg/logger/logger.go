package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the log level.
type Config struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// ParseLevel maps debug, info, warn and error to slog levels. Anything else is info.
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

// New creates a JSON logger on stdout.
func New(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	return NewWriter(os.Stdout, cfg, extractors...)
}

// NewWriter creates a JSON logger writing to w.
func NewWriter(w io.Writer, cfg Config, extractors ...ContextExtractor) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(NewContextHandler(h, extractors...))
}

// NewNope creates a logger that discards everything.
func NewNope() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
