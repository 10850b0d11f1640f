package correlation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

type contextKey struct{}

type eventKey struct{}

// NewID generates an 8-character correlation ID (the first block of a random UUID).
func NewID() string {
	return uuid.NewString()[:8]
}

// WithID returns a new context carrying the given correlation ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ID extracts the correlation ID from ctx, returning ("", false) if not present.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// ForEvent tags ctx with a fresh correlation ID and the name of the chat
// event (or background job) being handled.
func ForEvent(ctx context.Context, event string) context.Context {
	ctx = WithID(ctx, NewID())
	return context.WithValue(ctx, eventKey{}, event)
}

// Event returns the event name set by ForEvent.
func Event(ctx context.Context) (string, bool) {
	ev, ok := ctx.Value(eventKey{}).(string)
	return ev, ok && ev != ""
}

// Handler wraps an existing slog.Handler and injects "correlation_id" and
// "event" attributes when the context carries them.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if ev, ok := Event(ctx); ok {
		r.AddAttrs(slog.String("event", ev))
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}
