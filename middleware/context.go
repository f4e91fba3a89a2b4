package middleware

import (
	"context"

	"github.com/sanazindustrial/PROFGINE-sub004/internal/requestid"
)

// Context key type to avoid collisions
type contextKey string

// ClaimsKey is the context key for JWT claims
const ClaimsKey contextKey = "claims"

// Claims is the caller identity extracted from a validated token
type Claims struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Issuer  string   `json:"iss,omitempty"`
}

// HasRole reports whether the claims carry role
func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	return requestid.FromContext(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return requestid.NewContext(ctx, requestID)
}

// GetClaimsFromContext retrieves JWT claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds JWT claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// ActorFromContext names the caller for audit fields
func ActorFromContext(ctx context.Context) string {
	if claims := GetClaimsFromContext(ctx); claims != nil && claims.Subject != "" {
		return claims.Subject
	}
	return "anonymous"
}
