// Package session provides bootstrap session ID propagation via context.
//
// One session spans a single agent run: one factory fetch, one set of
// imports and at most one firing of each lifecycle phase.
package session

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// WithID returns a context carrying the given session ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the session ID from context.
// Returns "" when the context carries none.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// New generates a new session ID and returns the enriched context and ID.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithID(ctx, id), id
}
