package httpapi

import (
	"net/http"
	"time"

	mw "github.com/dmitrijs2005/bantx/internal/server/httpapi/middleware"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

const defaultRequestTimeout = 30 * time.Second

// NewRouter mounts every endpoint on a chi router. Routes under /api/users
// and /api/auth/me require a valid access token; the admin routes also
// require the admin role.
func NewRouter(d Deps) http.Handler {
	h := NewHandler(d)
	opts := d.Options

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitRequests > 0 {
			r.Use(httprate.Limit(opts.RateLimitRequests, opts.RateLimitWindow,
				httprate.WithKeyByRealIP(),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					respondWithError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later", h.log)
				}),
			))
		}

		authenticate := mw.Authenticate(d.Auth, d.Log)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh-token", h.RefreshToken)
			r.Post("/logout", h.Logout)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Post("/reset-password", h.ResetPassword)
			r.Post("/create-admin", h.CreateAdmin)
			r.With(authenticate).Get("/me", h.Me)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)
			r.Post("/profile/document", h.DocumentUploadURL)
			r.Post("/onboarding", h.SaveOnboarding)
			r.Get("/referrals", h.Referrals)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRoles(models.RoleAdmin))
				r.Get("/", h.ListUsers)
				r.Delete("/{id}", h.DeleteUser)
				r.Put("/{id}/role", h.ChangeRole)
				r.Get("/{id}/document", h.DocumentDownloadURL)
			})
		})
	})

	return r
}
