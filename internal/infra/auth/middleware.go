package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/docflow-gateway/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс, который реализует консоль (и любой будущий сервис)
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

type ctxKey string

const (
	ctxKeyScopes ctxKey = "user_scopes"
	ctxKeyUserID ctxKey = "user_id"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyScopes, claims.Scopes)
			ctx = context.WithValue(ctx, ctxKeyUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ScopesFromContext достает права текущего пользователя (после Middleware).
func ScopesFromContext(ctx context.Context) map[string]bool {
	if scopes, ok := ctx.Value(ctxKeyScopes).(map[string]bool); ok {
		return scopes
	}
	return nil
}

// UserIDFromContext достает ID пользователя, положенный Middleware.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return id
	}
	return ""
}
