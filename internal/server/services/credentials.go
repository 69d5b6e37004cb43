// Package services contains the server-side business logic: the credential
// store, authentication and session lifecycle, password reset, profile and
// admin user management, and KYC document storage.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/cryptox"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
)

const (
	referralPrefixLen     = 4
	referralFallback      = "BNTX"
	maxReferralCodeTrials = 5
)

// referralSuffix returns the random 4-digit part of a referral code.
var referralSuffix = func() int {
	return 1000 + rand.IntN(9000)
}

// CredentialStore enforces the user-record invariants on top of a users
// repository: normalized unique identities, hashed passwords, unique
// referral codes and single-use reset credentials.
type CredentialStore struct {
	repo users.Repository
}

func NewCredentialStore(repo users.Repository) *CredentialStore {
	return &CredentialStore{repo: repo}
}

// Create persists a new user. The password set with SetPassword is hashed
// first; nothing is written when the email or username is taken.
func (s *CredentialStore) Create(ctx context.Context, u *models.User) error {
	u.Normalize()
	if u.Email == "" || u.Username == "" {
		return fmt.Errorf("%w: email and username are required", common.ErrorValidation)
	}
	plain, ok := u.PendingPassword()
	if !ok || plain == "" {
		return fmt.Errorf("%w: password is required", common.ErrorValidation)
	}

	exists, err := s.repo.ExistsByEmailOrUsername(ctx, u.Email, u.Username)
	if err != nil {
		return internal(err)
	}
	if exists {
		return common.ErrDuplicateIdentity
	}

	hash, err := cryptox.HashPassword(plain)
	if err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return err
		}
		return internal(err)
	}
	u.Credentials = &models.Credentials{PasswordHash: hash}

	for i := 0; i < maxReferralCodeTrials; i++ {
		u.ReferralCode = newReferralCode(u)
		err = s.repo.Insert(ctx, u)
		if !errors.Is(err, common.ErrDuplicateReferralCode) {
			break
		}
	}
	switch {
	case err == nil:
		u.ClearPendingPassword()
		return nil
	case errors.Is(err, common.ErrDuplicateIdentity):
		return common.ErrDuplicateIdentity
	default:
		return internal(err)
	}
}

func newReferralCode(u *models.User) string {
	prefix := referralPrefix(u.Username)
	if len(prefix) < referralPrefixLen {
		prefix += referralPrefix(u.Email)
	}
	if len(prefix) > referralPrefixLen {
		prefix = prefix[:referralPrefixLen]
	}
	if prefix == "" {
		prefix = referralFallback
	}
	return fmt.Sprintf("%s%d", prefix, referralSuffix())
}

func referralPrefix(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
			if b.Len() == referralPrefixLen {
				break
			}
		}
	}
	return b.String()
}

// Save writes u. The password is hashed only when SetPassword was called on
// u since it was loaded, whatever the pending value looks like.
func (s *CredentialStore) Save(ctx context.Context, u *models.User) error {
	u.Normalize()

	if plain, ok := u.PendingPassword(); ok {
		if u.Credentials == nil {
			stored, err := s.repo.FindByID(ctx, u.ID, users.WithSecrets())
			if err != nil {
				return mapRepoError(err)
			}
			u.Credentials = stored.Credentials
		}
		hash, err := cryptox.HashPassword(plain)
		if err != nil {
			if errors.Is(err, common.ErrorValidation) {
				return err
			}
			return internal(err)
		}
		u.Credentials.PasswordHash = hash
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return mapRepoError(err)
	}
	u.ClearPendingPassword()
	return nil
}

func (s *CredentialStore) FindByID(ctx context.Context, id string, opts ...users.FindOption) (*models.User, error) {
	u, err := s.repo.FindByID(ctx, id, opts...)
	return u, mapRepoError(err)
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string, opts ...users.FindOption) (*models.User, error) {
	u, err := s.repo.FindByEmail(ctx, models.NormalizeEmail(email), opts...)
	return u, mapRepoError(err)
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string, opts ...users.FindOption) (*models.User, error) {
	u, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username), opts...)
	return u, mapRepoError(err)
}

func (s *CredentialStore) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	u, err := s.repo.FindByReferralCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	return u, mapRepoError(err)
}

// ConsumeReset sets newPassword on the user holding an unexpired reset
// credential with the given digest and clears that credential, in one
// conditional update. It returns the user id.
func (s *CredentialStore) ConsumeReset(ctx context.Context, tokenHash string, now time.Time, newPassword string) (string, error) {
	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		if errors.Is(err, common.ErrorValidation) {
			return "", err
		}
		return "", internal(err)
	}

	id, err := s.repo.ConsumeResetToken(ctx, tokenHash, hash, now)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidOrExpiredReset
		}
		return "", internal(err)
	}
	return id, nil
}

func (s *CredentialStore) List(ctx context.Context, page, limit int) ([]*models.User, int64, error) {
	list, err := s.repo.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, internal(err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, internal(err)
	}
	return list, total, nil
}

func (s *CredentialStore) ListReferredBy(ctx context.Context, id string) ([]*models.User, error) {
	list, err := s.repo.ListReferredBy(ctx, id)
	if err != nil {
		return nil, internal(err)
	}
	return list, nil
}

func (s *CredentialStore) Delete(ctx context.Context, id string) error {
	return mapRepoError(s.repo.Delete(ctx, id))
}

func (s *CredentialStore) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, internal(err)
	}
	return n, nil
}

// mapRepoError keeps the repository taxonomy errors and folds everything
// else into common.ErrorInternal.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorNotFound):
		return common.ErrorNotFound
	case errors.Is(err, common.ErrDuplicateIdentity), errors.Is(err, common.ErrDuplicateReferralCode):
		return common.ErrDuplicateIdentity
	default:
		return internal(err)
	}
}

func internal(err error) error {
	return fmt.Errorf("%w: %v", common.ErrorInternal, err)
}
