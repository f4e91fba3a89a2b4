// Package requestid carries the HTTP request id through a context so that
// layers below the router can tag logs and records without importing it.
package requestid

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey struct{}

// NewContext returns ctx carrying id
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request id stored by NewContext, falling back to
// the one set by chi's RequestID middleware. Empty when neither is present.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return chimw.GetReqID(ctx)
}
