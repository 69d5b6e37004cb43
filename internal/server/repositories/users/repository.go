// Package users declares the user persistence contract and its PostgreSQL,
// MongoDB and in-memory implementations.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/bantx/internal/server/models"
)

// FindOptions tunes a lookup.
type FindOptions struct {
	// WithSecrets loads Credentials (password hash and reset fields). Without
	// it the returned user has Credentials == nil.
	WithSecrets bool
}

type FindOption func(*FindOptions)

// WithSecrets requests the secret projection of a user.
func WithSecrets() FindOption {
	return func(o *FindOptions) { o.WithSecrets = true }
}

func applyFindOptions(opts []FindOption) FindOptions {
	var o FindOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Repository persists users. Emails are expected normalized by the caller.
//
// Unique violations surface as common.ErrDuplicateIdentity (email or
// username) or common.ErrDuplicateReferralCode; missing rows as
// common.ErrorNotFound.
type Repository interface {
	// Insert stores a new user. u.Credentials must carry the password hash.
	// ID, CreatedAt and UpdatedAt are filled in on success.
	Insert(ctx context.Context, u *models.User) error

	FindByID(ctx context.Context, id string, opts ...FindOption) (*models.User, error)
	FindByEmail(ctx context.Context, email string, opts ...FindOption) (*models.User, error)
	FindByUsername(ctx context.Context, username string, opts ...FindOption) (*models.User, error)
	FindByReferralCode(ctx context.Context, code string) (*models.User, error)

	// ExistsByEmailOrUsername reports whether either value is taken.
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)

	// Update writes the user's public fields, and its secret fields only when
	// u.Credentials is non-nil.
	Update(ctx context.Context, u *models.User) error

	// ConsumeResetToken atomically replaces the password hash and clears both
	// reset fields of the user whose reset hash equals tokenHash and whose
	// expiry is after now. It returns the user id, or common.ErrorNotFound
	// when no such user exists.
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error)

	AddRewardPoints(ctx context.Context, id string, points int) error

	// List returns users newest first.
	List(ctx context.Context, offset, limit int) ([]*models.User, error)
	Count(ctx context.Context) (int64, error)
	ListReferredBy(ctx context.Context, referrerID string) ([]*models.User, error)
	Delete(ctx context.Context, id string) error
}
