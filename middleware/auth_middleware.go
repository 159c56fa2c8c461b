package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/upb/workshop-crew/auth"
	"github.com/upb/workshop-crew/utils"
	"go.uber.org/zap"
)

// authCookie carries the token for browser clients. The Authorization header wins.
const authCookie = "auth_token"

// TokenValidator turns a bearer token into the caller's claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// AuthMiddleware guards the run endpoints
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, logger: logger}
}

// RequireAuth rejects requests without a valid token and stores the claims
// in the request context otherwise.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := m.logger.With(
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("path", r.URL.Path))

		token := extractToken(r)
		if token == "" {
			log.Warn("rejected request without token")
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.validator.ValidateToken(ctx, token)
		if err != nil {
			log.Warn("rejected token", zap.Error(err))
			msg := "Invalid or expired token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "Token expired"
			}
			_ = utils.WriteUnauthorized(w, msg)
			return
		}

		log.Debug("caller authenticated", zap.String("sub", claims.Sub))
		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(authCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
