// Package middleware holds the HTTP middleware of the BANTX API: session
// authentication, role gating and request logging.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/logging"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/models"
)

// IdentityResolver turns a verified access token into the identity of a
// user that still exists.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, accessToken string) (models.Identity, error)
}

// Authenticate requires "Authorization: Bearer <access token>".
//
//	no header             -> 401
//	malformed header      -> 401
//	invalid/expired token -> 401
//	user no longer exists -> 404
//	store failure         -> 500
//
// On success the typed identity is attached to the request context.
func Authenticate(resolver IdentityResolver, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
				return
			}
			token, ok := auth.ParseBearer(h)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
				return
			}

			id, err := resolver.ResolveIdentity(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, common.ErrTokenExpired):
				writeError(w, http.StatusUnauthorized, "token_expired", "access token expired")
				return
			case errors.Is(err, common.ErrInvalidToken):
				writeError(w, http.StatusUnauthorized, "invalid_token", "invalid access token")
				return
			case errors.Is(err, common.ErrorNotFound):
				writeError(w, http.StatusNotFound, "not_found", "user not found")
				return
			default:
				log.Error(r.Context(), "resolve identity failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, Message: message})
}
