// Package correlation threads a request id, plus any attributes scoped to the
// same unit of work, through a context and into every log line written with it.
package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
)

const idLength = 8

type contextKey struct{}

type scope struct {
	id    string
	attrs []slog.Attr
}

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(contextKey{}).(scope)
	return s
}

// NewID returns a short random hex id.
func NewID() string {
	return uuid.NewString()[:idLength]
}

// WithID sets the correlation id, keeping attributes already in scope.
func WithID(ctx context.Context, id string) context.Context {
	s := scopeOf(ctx)
	s.id = id
	return context.WithValue(ctx, contextKey{}, s)
}

func ID(ctx context.Context) (string, bool) {
	s := scopeOf(ctx)
	return s.id, s.id != ""
}

// Ensure returns ctx carrying a correlation id, minting one if absent.
func Ensure(ctx context.Context) (context.Context, string) {
	if id, ok := ID(ctx); ok {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}

// WithAttrs adds attributes to every record logged with the returned context.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	s := scopeOf(ctx)
	s.attrs = append(slices.Clip(s.attrs), attrs...)
	return context.WithValue(ctx, contextKey{}, s)
}

// Handler decorates records with the context's correlation scope.
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
	s := scopeOf(ctx)
	if s.id != "" {
		r.AddAttrs(slog.String("correlation_id", s.id))
	}
	r.AddAttrs(s.attrs...)
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewHandler(h.inner.WithAttrs(attrs))
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return NewHandler(h.inner.WithGroup(name))
}
