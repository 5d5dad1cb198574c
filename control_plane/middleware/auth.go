package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nexusvanguard/control-plane/control_plane/errs"
)

type contextKey string

const roleContextKey contextKey = "role"

// AdminAuth gates every /vanguard/admin/* route behind a single shared
// API key; there is no tenant concept here, only an operator boundary.
func AdminAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, errs.AuthRequired, "missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeAuthError(w, errs.AuthRequired, "expected 'Bearer <api-key>'")
				return
			}

			if apiKey == "" || subtle.ConstantTimeCompare([]byte(parts[1]), []byte(apiKey)) != 1 {
				writeAuthError(w, errs.InvalidAPIKey, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), roleContextKey, "admin")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsAdmin reports whether the current request authenticated as an operator.
func IsAdmin(ctx context.Context) bool {
	role, _ := ctx.Value(roleContextKey).(string)
	return role == "admin"
}

func writeAuthError(w http.ResponseWriter, code errs.Code, message string) {
	ve := errs.New(code, message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ve.HTTPStatus)
	json.NewEncoder(w).Encode(ve)
}
