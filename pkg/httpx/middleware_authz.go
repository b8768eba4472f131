package httpx

import (
	"net/http"
)

// RequireAdmin lets through only callers whose token carries is_admin. It
// must run after AuthnMiddleware.
func RequireAdmin() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			if !claims.IsAdmin {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"status":  "permission_denied",
					"message": "admin rights required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
