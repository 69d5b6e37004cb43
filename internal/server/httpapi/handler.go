// Package httpapi exposes the BANTX services over HTTP with a chi router.
package httpapi

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bantx/internal/logging"
	"github.com/dmitrijs2005/bantx/internal/server/services"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Options struct {
	// CookieSecure sets Secure on the refresh cookie; on in production.
	CookieSecure       bool
	RefreshTTL         time.Duration
	CORSAllowedOrigins []string
	// RateLimitRequests per RateLimitWindow per client IP; 0 disables it.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration
}

type Deps struct {
	Auth      *services.AuthService
	Reset     *services.PasswordResetService
	Users     *services.UserService
	Documents *services.DocumentService
	Health    HealthChecker
	Log       logging.Logger
	Options   Options
}

// Handler holds the HTTP handlers of the API.
type Handler struct {
	auth      *services.AuthService
	reset     *services.PasswordResetService
	users     *services.UserService
	documents *services.DocumentService
	health    HealthChecker
	log       logging.Logger
	opts      Options
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		auth:      d.Auth,
		reset:     d.Reset,
		users:     d.Users,
		documents: d.Documents,
		health:    d.Health,
		log:       d.Log,
		opts:      d.Options,
	}
}
