package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

type contextKey string

const userContextKey contextKey = "user"

// Middleware handles authentication for incoming HTTP requests.
type Middleware struct {
	Broker *Broker
	Logger *logrus.Logger
}

// NewMiddleware initializes a new authentication middleware.
func NewMiddleware(broker *Broker, logger *logrus.Logger) *Middleware {
	return &Middleware{
		Broker: broker,
		Logger: logger,
	}
}

// AuthMiddleware is the HTTP middleware for authentication.
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r, "access_token")
		if tokenString == "" {
			m.Logger.Warn("Authorization token not found")
			WriteErrorResponse(w, "Authorization token not found", http.StatusUnauthorized)
			return
		}

		claims, err := m.Broker.VerifyAccessToken(r.Context(), tokenString)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				m.Logger.WithError(err).Warn("Invalid token")
				WriteErrorResponse(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			m.Logger.WithError(err).Error("Failed to verify token")
			WriteErrorResponse(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the claims attached by AuthMiddleware.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	return claims, ok && claims != nil
}
