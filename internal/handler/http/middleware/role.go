package middleware

import (
	"net/http"
	"slices"

	"github.com/cmlabs-hris/staff-attendance-go/internal/handler/http/response"
)

// RequireRole lets the request through when the caller has one of roles.
// An empty list allows every authenticated caller.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(roles) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Unauthorized(w, "Authentication required")
				return
			}
			if !slices.Contains(roles, claims.Role) {
				response.Forbidden(w, "Editing staff attendances is not allowed for role '"+claims.Role+"'")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
