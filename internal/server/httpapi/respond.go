package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/logging"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func respondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload any, log logging.Logger) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error(r.Context(), "failed to marshal JSON response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(response); err != nil {
		log.Error(r.Context(), "failed to write HTTP response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, r *http.Request, code int, errCode, message string, log logging.Logger) {
	respondWithJSON(w, r, code, errorResponse{Error: errCode, Message: message}, log)
}

// respondWithServiceError maps the error taxonomy onto HTTP statuses. This is
// the only place where that mapping lives; 500s are logged in full and
// answered with a generic message.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, log logging.Logger) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		respondWithError(w, r, http.StatusBadRequest, "validation_error", err.Error(), log)
	case errors.Is(err, common.ErrDuplicateIdentity):
		respondWithError(w, r, http.StatusBadRequest, "duplicate_identity", "user with this email or username already exists", log)
	case errors.Is(err, common.ErrInvalidCredentials):
		respondWithError(w, r, http.StatusBadRequest, "invalid_credentials", "invalid email or password", log)
	case errors.Is(err, common.ErrInvalidOrExpiredReset):
		respondWithError(w, r, http.StatusBadRequest, "invalid_reset_token", "reset token is invalid or has expired", log)
	case errors.Is(err, common.ErrInvalidToken):
		respondWithError(w, r, http.StatusUnauthorized, "invalid_token", "invalid token", log)
	case errors.Is(err, common.ErrTokenExpired):
		respondWithError(w, r, http.StatusUnauthorized, "token_expired", "token expired", log)
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrTokenRevoked):
		respondWithError(w, r, http.StatusForbidden, "forbidden", "access denied", log)
	case errors.Is(err, common.ErrorNotFound):
		respondWithError(w, r, http.StatusNotFound, "not_found", "not found", log)
	default:
		log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondWithError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", log)
	}
}
