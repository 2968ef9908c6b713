package hooking

import (
	"context"
	"fmt"
	"log/slog"
)

// A LogHook turns every hook invocation into a structured log record.
type LogHook struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogHook creates a LogHook that logs at info level. A nil logger means
// slog.Default().
func NewLogHook(logger *slog.Logger) *LogHook {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogHook{
		logger: logger,
		level:  slog.LevelInfo,
	}
}

// WithLevel sets the level the records are logged at.
func (h *LogHook) WithLevel(level slog.Level) *LogHook {
	h.level = level

	return h
}

// Func logs the hook context.
func (h *LogHook) Func(ctx HookCtx) {
	if !h.logger.Enabled(context.Background(), h.level) {
		return
	}

	attrs := []any{
		slog.String("component", ctx.DomainName()),
		slog.String("pos", ctx.Pos.Name),
	}

	if ctx.Actor != "" {
		attrs = append(attrs, slog.String("actor", ctx.Actor))
	}

	if ctx.Item != nil {
		attrs = append(attrs, slog.String("item", fmt.Sprint(ctx.Item)))
	}

	if ctx.Detail != nil {
		attrs = append(attrs, slog.String("detail", fmt.Sprintf("%+v", ctx.Detail)))
	}

	h.logger.Log(context.Background(), h.level, ctx.Pos.Name, attrs...)
}
