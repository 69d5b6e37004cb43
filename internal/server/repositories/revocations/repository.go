// Package revocations declares the server-side store of revoked refresh
// token ids. A refresh token whose jti is listed here is refused even though
// its signature and expiry are still valid.
package revocations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bantx/internal/server/models"
)

// Repository records revoked refresh tokens.
type Repository interface {
	// Revoke records token.TokenID. Revoking an already revoked id is not an
	// error.
	Revoke(ctx context.Context, token models.RevokedToken) error

	// IsRevoked reports whether tokenID has been revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// PurgeExpired drops entries whose token has expired by now and returns
	// how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
