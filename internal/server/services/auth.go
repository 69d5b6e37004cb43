package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/cryptox"
	"github.com/dmitrijs2005/bantx/internal/logging"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
)

// ReferralBonus is credited to the referrer for every referred registration.
const ReferralBonus = 10

// Session is the result of a successful login.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

type RegisterInput struct {
	Username     string
	Email        string
	Password     string
	ReferralCode string
	// Profile holds optional initial profile fields. Empty fields keep the
	// defaults; FullName falls back to the username.
	Profile models.Profile
}

// AuthService issues and refreshes sessions and resolves access tokens to
// identities. Roles are always read from the store, never trusted from a
// token.
type AuthService struct {
	repos       repomanager.RepositoryManager
	tokens      *auth.TokenService
	adminSecret string
	log         logging.Logger
	now         func() time.Time
}

func NewAuthService(repos repomanager.RepositoryManager, tokens *auth.TokenService, adminSecret string, l logging.Logger) *AuthService {
	return &AuthService{
		repos:       repos,
		tokens:      tokens,
		adminSecret: adminSecret,
		log:         l,
		now:         time.Now,
	}
}

func (s *AuthService) store() *CredentialStore {
	return NewCredentialStore(s.repos.Users())
}

// Register creates a user with the default role. A known referral code links
// the new user to its owner and credits the owner in the same transaction;
// an unknown code is ignored.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.create(ctx, in, models.RoleUser)
}

// ProvisionAdmin creates an admin user when secret matches the configured
// admin secret. An unset admin secret disables provisioning.
func (s *AuthService) ProvisionAdmin(ctx context.Context, secret string, in RegisterInput) (*models.User, error) {
	if s.adminSecret == "" || !cryptox.SecretsEqual(secret, s.adminSecret) {
		return nil, common.ErrForbidden
	}
	in.ReferralCode = ""
	u, err := s.create(ctx, in, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.log.Warn(ctx, "admin provisioned", "user_id", u.ID, "email", u.Email)
	return u, nil
}

func (s *AuthService) create(ctx context.Context, in RegisterInput, role models.Role) (*models.User, error) {
	u := models.NewUser(in.Username, in.Email)
	u.Role = role
	u.SetPassword(in.Password)
	applyInitialProfile(&u.Profile, in.Profile)
	if u.Profile.FullName == "" {
		u.Profile.FullName = u.Username
	}

	var referrer *models.User
	if in.ReferralCode != "" {
		r, err := s.store().FindByReferralCode(ctx, in.ReferralCode)
		switch {
		case err == nil:
			referrer = r
			u.ReferredBy = r.ID
		case errors.Is(err, common.ErrorNotFound):
			s.log.Info(ctx, "unknown referral code ignored", "code", in.ReferralCode)
		default:
			return nil, err
		}
	}

	err := s.repos.WithinTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		if err := NewCredentialStore(r.Users).Create(ctx, u); err != nil {
			return err
		}
		if referrer != nil {
			if err := r.Users.AddRewardPoints(ctx, referrer.ID, ReferralBonus); err != nil {
				return internal(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	u.Credentials = nil
	s.log.Info(ctx, "user registered", "user_id", u.ID, "role", u.Role, "referred", referrer != nil)
	return u, nil
}

// Login checks email and password. Unknown email and wrong password give
// the same ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store().FindByEmail(ctx, email, users.WithSecrets())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}
	if u.Credentials == nil || !cryptox.ComparePassword(u.Credentials.PasswordHash, password) {
		return nil, common.ErrInvalidCredentials
	}
	u.Credentials = nil

	access, err := s.tokens.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return nil, internal(err)
	}
	refresh, err := s.tokens.IssueRefreshToken(u.ID)
	if err != nil {
		return nil, internal(err)
	}
	return &Session{AccessToken: access, RefreshToken: refresh, User: u}, nil
}

// Refresh exchanges a valid, unrevoked refresh token for a new access token
// carrying the user's current role.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}

	revoked, err := s.repos.Revocations().IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", internal(err)
	}
	if revoked {
		return "", common.ErrTokenRevoked
	}

	u, err := s.store().FindByID(ctx, claims.Subject)
	if err != nil {
		return "", err
	}

	access, err := s.tokens.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return "", internal(err)
	}
	return access, nil
}

// Logout revokes the presented refresh token until it expires. Missing or
// unusable tokens are not an error since there is nothing left to revoke.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}

	err = s.repos.Revocations().Revoke(ctx, models.RevokedToken{
		TokenID:   claims.ID,
		UserID:    claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return internal(err)
	}
	return nil
}

// CurrentUser returns the public projection of the user.
func (s *AuthService) CurrentUser(ctx context.Context, id string) (*models.User, error) {
	return s.store().FindByID(ctx, id)
}

// ResolveIdentity verifies an access token and loads its subject. It
// returns the token errors, common.ErrorNotFound when the user is gone, or
// common.ErrorInternal.
func (s *AuthService) ResolveIdentity(ctx context.Context, accessToken string) (models.Identity, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return models.Identity{}, err
	}
	u, err := s.store().FindByID(ctx, claims.Subject)
	if err != nil {
		return models.Identity{}, err
	}
	return u.Identity(), nil
}

// PurgeRevocations drops revocation entries of tokens that have expired.
func (s *AuthService) PurgeRevocations(ctx context.Context) (int64, error) {
	n, err := s.repos.Revocations().PurgeExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge revocations: %w", err)
	}
	return n, nil
}

// applyInitialProfile copies the descriptive fields a client may set at
// registration. Wallet balances and the KYC document key are not among them.
func applyInitialProfile(dst *models.Profile, src models.Profile) {
	set := func(d *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*d = v
		}
	}
	set(&dst.FullName, src.FullName)
	set(&dst.Phone, src.Phone)
	set(&dst.FirstName, src.FirstName)
	set(&dst.LastName, src.LastName)
	set(&dst.BirthDate, src.BirthDate)
	set(&dst.Country, src.Country)
	set(&dst.City, src.City)
	set(&dst.Alias, src.Alias)
	set(&dst.Nationality, src.Nationality)
	set(&dst.Currency, src.Currency)
	set(&dst.Language, src.Language)
}
