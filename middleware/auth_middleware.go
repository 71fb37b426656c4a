package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tachyonlabs/modelgate/services/session"
	"github.com/tachyonlabs/modelgate/utils"
)

type contextKey string

// SessionContextKey is the request context key holding the validated session
const SessionContextKey contextKey = "session"

// Auth validates the bearer token on incoming requests and injects the
// resulting session into the request context
func Auth(validator session.Validator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteUnauthorized(w, "Missing Authorization header")
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				utils.WriteUnauthorized(w, "Authorization header must use Bearer scheme")
				return
			}

			sess, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				logger.Debug("session validation failed", zap.Error(err))
				utils.WriteUnauthorized(w, "Invalid or expired session token")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext extracts the validated session from the request context
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(SessionContextKey).(*session.Session)
	return sess, ok
}
