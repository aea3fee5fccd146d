package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/glizzus/cronrelay/internal/config"
)

// New builds the process logger: colored text on stderr and, when cfg.File
// is set, rotated JSON lines in that file. The returned func closes the file.
func New(cfg *config.LogConfig, role string) (*slog.Logger, func() error) {
	return newLogger(cfg, role, os.Stderr)
}

func newLogger(cfg *config.LogConfig, role string, console io.Writer) (*slog.Logger, func() error) {
	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      ParseLevel(cfg.Level),
			TimeFormat: time.DateTime,
			NoColor:    cfg.NoColor,
		}),
	}

	closer := func() error { return nil }
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		closer = file.Close
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: ParseLevel(cfg.FileLevel)}))
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = fanout(handlers)
	}
	return slog.New(h).With(slog.String("role", role)), closer
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

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
