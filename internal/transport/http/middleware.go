package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strogmv/notifyd/internal/pkg/auth"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// AuthMiddleware resolves the caller from the Authorization header or, for
// EventSource and websocket clients that cannot set headers, from the
// access_token query parameter.
func AuthMiddleware(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("Authorization")
			if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				token = r.URL.Query().Get("access_token")
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			id, err := v.Verify(token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "token expired"
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// CurrentIdentity returns the caller set by AuthMiddleware.
func CurrentIdentity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !CurrentIdentity(r).Can(perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// selfOr reports whether the caller is userID or holds perm.
func selfOr(r *http.Request, userID, perm string) bool {
	id := CurrentIdentity(r)
	return id.UserID == userID || id.Can(perm)
}
