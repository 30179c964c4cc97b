// internal/handler/auth.go
package handler

import (
	"net/http"
	"strings"

	"github.com/unclebandit/fieldsales-recruit/internal/auth"
)

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	Parse(token string) (string, error)
}

// RequireBearer rejects requests without a valid Authorization: Bearer
// token and stores the caller's user id in the request context.
func RequireBearer(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			userID, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
		})
	}
}
