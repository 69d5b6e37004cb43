package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/dmitrijs2005/bantx/internal/server/services"
)

const refreshCookiePath = "/api/auth"

// registerRequest.ReferredBy carries the referrer's referral code.
type registerRequest struct {
	Username    string               `json:"username" validate:"required,min=3,max=50"`
	Email       string               `json:"email" validate:"required,email"`
	Password    string               `json:"password" validate:"required,min=6,max=72"`
	ReferredBy  string               `json:"referredBy" validate:"omitempty,max=16"`
	ProfileData *registerProfileData `json:"profileData"`
}

// registerProfileData accepts the country both as "country" and as "pais".
type registerProfileData struct {
	FullName    string `json:"fullName" validate:"omitempty,max=100"`
	Phone       string `json:"phone" validate:"omitempty,max=30"`
	Country     string `json:"country" validate:"omitempty,max=60"`
	Pais        string `json:"pais" validate:"omitempty,max=60"`
	City        string `json:"ciudad" validate:"omitempty,max=60"`
	Nationality string `json:"nacionalidad" validate:"omitempty,max=60"`
	Currency    string `json:"currency" validate:"omitempty,oneof=USDT USDC"`
	Language    string `json:"language" validate:"omitempty,min=2,max=5"`
}

func (p *registerProfileData) toProfile() models.Profile {
	if p == nil {
		return models.Profile{}
	}
	country := p.Country
	if country == "" {
		country = p.Pais
	}
	return models.Profile{
		FullName:    p.FullName,
		Phone:       p.Phone,
		Country:     country,
		City:        p.City,
		Nationality: p.Nationality,
		Currency:    p.Currency,
		Language:    p.Language,
	}
}

type createAdminRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	SecretKey string `json:"secretKey" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}

	u, err := h.auth.Register(r.Context(), services.RegisterInput{
		Username:     req.Username,
		Email:        req.Email,
		Password:     req.Password,
		ReferralCode: req.ReferredBy,
		Profile:      req.ProfileData.toProfile(),
	})
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusCreated, userResponse{Message: "user registered", User: u}, h.log)
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := decode(w, r, &req); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}

	u, err := h.auth.ProvisionAdmin(r.Context(), req.SecretKey, services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, common.ErrForbidden) {
			h.log.Warn(r.Context(), "admin provisioning refused", "remote", r.RemoteAddr)
		}
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusCreated, userResponse{Message: "admin created", User: u}, h.log)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}

	s, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}

	h.setRefreshCookie(w, s.RefreshToken)
	respondWithJSON(w, r, http.StatusOK, loginResponse{Token: s.AccessToken, User: s.User}, h.log)
}

// RefreshToken reads the refresh token from its cookie (or, for non-browser
// clients, the JSON body). Every failure is a 403.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := h.refreshTokenFrom(r)
	if token == "" {
		respondWithError(w, r, http.StatusForbidden, "forbidden", "refresh token required", h.log)
		return
	}

	access, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrorInternal) {
			respondWithServiceError(w, r, err, h.log)
			return
		}
		respondWithError(w, r, http.StatusForbidden, "forbidden", "invalid or expired refresh token", h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, refreshResponse{AccessToken: access}, h.log)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), h.refreshTokenFrom(r)); err != nil {
		h.log.Error(r.Context(), "revoke refresh token failed", "error", err)
	}
	h.clearRefreshCookie(w)
	respondWithJSON(w, r, http.StatusOK, messageResponse{Message: "logged out"}, h.log)
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(w, r, &req); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	if err := h.reset.RequestReset(r.Context(), req.Email); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, messageResponse{
		Message: "if the email is registered, a password reset link has been sent",
	}, h.log)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	if err := h.reset.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, messageResponse{Message: "password updated"}, h.log)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondWithServiceError(w, r, common.ErrInvalidToken, h.log)
		return
	}
	u, err := h.auth.CurrentUser(r.Context(), id.ID)
	if err != nil {
		respondWithServiceError(w, r, err, h.log)
		return
	}
	respondWithJSON(w, r, http.StatusOK, u, h.log)
}

func (h *Handler) refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(common.RefreshTokenCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	var req refreshRequest
	if err := decode(nil, r, &req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(h.opts.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
