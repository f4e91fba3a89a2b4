package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sanazindustrial/PROFGINE-sub004/utils"
	"go.uber.org/zap"
)

// TokenValidator defines the interface for validating JWT tokens
type TokenValidator interface {
	// ValidateToken validates a JWT token and returns claims
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// authTokenCookieName is the cookie name for JWT tokens (Authorization header takes precedence)
const authTokenCookieName = "auth_token"

// RequireAuth is a middleware that requires a valid JWT token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractToken(r)
		if token == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx = WithClaims(ctx, claims)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Subject))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole is a middleware that requires a specific role.
// It must run after RequireAuth.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			claims := GetClaimsFromContext(ctx)
			if claims == nil {
				m.logger.Error("claims not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !claims.HasRole(role) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("sub", claims.Subject),
					zap.String("required_role", role),
					zap.Strings("roles", claims.Roles))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestContext copies chi's request ID into the context key used by services
// and echoes it in the X-Request-ID response header.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestIDFromContext(r.Context())
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
			r = r.WithContext(WithRequestID(r.Context(), requestID))
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken extracts JWT from the Authorization header ("Bearer TOKEN") or the auth_token cookie.
// Authorization header takes precedence when both are present.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(authTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
