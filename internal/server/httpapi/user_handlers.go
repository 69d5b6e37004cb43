package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/dmitrijs2005/bantx/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type walletRequest struct {
	USDT *float64 `json:"usdt" validate:"omitempty,gte=0"`
	USDC *float64 `json:"usdc" validate:"omitempty,gte=0"`
}

type updateProfileRequest struct {
	Email               *string          `json:"email" validate:"omitempty,email"`
	FullName            *string          `json:"fullName" validate:"omitempty,max=100"`
	Phone               *string          `json:"phone" validate:"omitempty,max=30"`
	FirstName           *string          `json:"nombre" validate:"omitempty,max=50"`
	LastName            *string          `json:"apellido" validate:"omitempty,max=50"`
	BirthDate           *string          `json:"fechaNacimiento"`
	Country             *string          `json:"pais"`
	City                *string          `json:"ciudad"`
	Alias               *string          `json:"alias" validate:"omitempty,max=50"`
	Nationality         *string          `json:"nacionalidad"`
	DocumentType        *string          `json:"tipoDocumento"`
	DocumentNumber      *string          `json:"numeroDocumento"`
	Reference           *string          `json:"referencia"`
	Currency            *string          `json:"currency" validate:"omitempty,oneof=USDT USDC"`
	Language            *string          `json:"language" validate:"omitempty,min=2,max=5"`
	Wallet              *walletRequest   `json:"wallet"`
	Settings            *models.Settings `json:"settings"`
	OnboardingCompleted *bool            `json:"onboardingCompleted"`
}

func (req updateProfileRequest) toUpdate() services.ProfileUpdate {
	upd := services.ProfileUpdate{
		Email:               req.Email,
		FullName:            req.FullName,
		Phone:               req.Phone,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		BirthDate:           req.BirthDate,
		Country:             req.Country,
		City:                req.City,
		Alias:               req.Alias,
		Nationality:         req.Nationality,
		DocumentType:        req.DocumentType,
		DocumentNumber:      req.DocumentNumber,
		Reference:           req.Reference,
		Currency:            req.Currency,
		Language:            req.Language,
		Settings:            req.Settings,
		OnboardingCompleted: req.OnboardingCompleted,
	}
	if req.Wallet != nil {
		upd.Wallet = &services.WalletUpdate{USDT: req.Wallet.USDT, USDC: req.Wallet.USDC}
	}
	return upd
}

type onboardingRequest struct {
	FirstName string `json:"nombre" validate:"required,max=50"`
	LastName  string `json:"apellido" validate:"required,max=50"`
	BirthDate string `json:"fechaNacimiento" validate:"required"`
	Country   string `json:"pais" validate:"required"`
	City      string `json:"ciudad" validate:"required"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

type referralsResponse struct {
	Referrals []*models.User `json:"referrals"`
	Count     int            `json:"count"`
}

type uploadURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type downloadURLResponse struct {
	URL string `json:"url"`
}

// callerID returns the id of the authenticated caller. It writes a 401 and
// returns false when the request carries no identity.
func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondWithServiceError(w, r, common.ErrInvalidToken, h.log)
		return "", false
	}
	return id.ID, true
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	u, err := h.users.GetProfile(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, u, h.log)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decode(w, r, &req); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), id, req.toUpdate())
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, u, h.log)
}

func (h *Handler) SaveOnboarding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req onboardingRequest
	if err := decode(w, r, &req); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	u, err := h.users.SaveOnboarding(r.Context(), id, services.OnboardingInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		BirthDate: req.BirthDate,
		Country:   req.Country,
		City:      req.City,
	})
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, u, h.log)
}

func (h *Handler) Referrals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	list, err := h.users.Referrals(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, referralsResponse{Referrals: list, Count: len(list)}, h.log)
}

func (h *Handler) DocumentUploadURL(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	key, url, err := h.documents.UploadURL(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, uploadURLResponse{Key: key, URL: url}, h.log)
}

// ListUsers takes optional page and limit query values; anything that is not
// a positive integer falls back to the defaults.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	p, err := h.users.ListUsers(r.Context(), page, limit)
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, p, h.log)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, messageResponse{Message: "user deleted"}, h.log)
}

func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := decode(w, r, &req); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	u, err := h.users.ChangeRole(r.Context(), chi.URLParam(r, "id"), models.Role(req.Role))
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, u, h.log)
}

func (h *Handler) DocumentDownloadURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.documents.DownloadURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, downloadURLResponse{URL: url}, h.log)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.log.Error(r.Context(), "health check failed", "error", err)
			respondWithError(w, r, http.StatusServiceUnavailable, "unavailable", "store unreachable", h.log)
			return
		}
	}
	respondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"}, h.log)
}
