package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	ExchangeIDKey contextKey = "exchange_id"
	StateKey      contextKey = "state"
	StepKey       contextKey = "step"
)

// ContextHandler wraps another slog.Handler and adds attributes from context.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler creates a handler that extracts values from context.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds context attributes before calling the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(ExchangeIDKey).(string); ok {
		r.AddAttrs(slog.String(string(ExchangeIDKey), id))
	}
	if state, ok := ctx.Value(StateKey).(string); ok {
		r.AddAttrs(slog.String(string(StateKey), state))
	}
	if step, ok := ctx.Value(StepKey).(int); ok {
		r.AddAttrs(slog.Int(string(StepKey), step))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// Helper functions to add values to context
func ContextWithExchangeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ExchangeIDKey, id)
}

// ContextWithState records the gateway state a log line was emitted in.
func ContextWithState(ctx context.Context, state string) context.Context {
	return context.WithValue(ctx, StateKey, state)
}

func ContextWithStep(ctx context.Context, step int) context.Context {
	return context.WithValue(ctx, StepKey, step)
}

// ExchangeID returns the exchange id stored in ctx, if any.
func ExchangeID(ctx context.Context) string {
	id, _ := ctx.Value(ExchangeIDKey).(string)
	return id
}
