package middleware

import (
	"net/http"

	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/models"
)

// RequireRoles lets a request through only when the identity placed by
// Authenticate holds one of allowed. A missing identity is also 403.
func RequireRoles(allowed ...models.Role) func(http.Handler) http.Handler {
	set := map[models.Role]struct{}{}
	for _, a := range allowed {
		set[a] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusForbidden, "forbidden", "access denied")
				return
			}
			if _, allowed := set[id.Role]; !allowed {
				writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
