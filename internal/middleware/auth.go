// Package middleware authenticates requests, guards admin routes and
// stamps requests with ids for log correlation.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/vchernov/bank-cards/internal/models"
	"github.com/vchernov/bank-cards/internal/service"
)

type contextKey string

const userKey contextKey = "user"

// AuthMiddleware validates the bearer access token against both its
// signature and the revocation ledger, then attaches the resolved user
// to the request context.
func AuthMiddleware(auth *service.AuthService, log *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "missing or invalid Authorization header")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			user, err := auth.ValidateAccess(r.Context(), raw)
			if err != nil {
				log.Debugf("Access token rejected: %v", err)
				unauthorized(w, "invalid or revoked token")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose authenticated user lacks the role.
func RequireRole(role models.Role, log *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}
			if !user.HasRole(role) {
				log.Warnf("User %d denied access to %s: missing role %s", user.ID, r.URL.Path, role)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{"error": "access denied"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext returns the authenticated user attached by AuthMiddleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
