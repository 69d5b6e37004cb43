package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/logging"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ProfileUpdate carries the fields a user may change on their profile. Nil
// fields are left as stored.
type ProfileUpdate struct {
	Email               *string
	FullName            *string
	Phone               *string
	FirstName           *string
	LastName            *string
	BirthDate           *string
	Country             *string
	City                *string
	Alias               *string
	Nationality         *string
	DocumentType        *string
	DocumentNumber      *string
	Reference           *string
	Currency            *string
	Language            *string
	Wallet              *WalletUpdate
	Settings            *models.Settings
	OnboardingCompleted *bool
}

type WalletUpdate struct {
	USDT *float64
	USDC *float64
}

type OnboardingInput struct {
	FirstName string
	LastName  string
	BirthDate string
	Country   string
	City      string
}

type UserPage struct {
	Users []*models.User `json:"users"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Pages int64          `json:"pages"`
}

// UserService serves profile reads and edits for the signed-in user and the
// admin user-management operations.
type UserService struct {
	store *CredentialStore
	log   logging.Logger
}

func NewUserService(repo users.Repository, l logging.Logger) *UserService {
	return &UserService{store: NewCredentialStore(repo), log: l}
}

func (s *UserService) GetProfile(ctx context.Context, id string) (*models.User, error) {
	return s.store.FindByID(ctx, id)
}

// UpdateProfile applies upd. A changed email is normalized and must stay
// unique. Onboarding becomes complete when the required profile fields are
// all present or when the flag is set explicitly.
func (s *UserService) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		email := models.NormalizeEmail(*upd.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email must not be empty", common.ErrorValidation)
		}
		if email != u.Email {
			other, err := s.store.FindByEmail(ctx, email)
			switch {
			case err == nil && other.ID != u.ID:
				return nil, common.ErrDuplicateIdentity
			case err != nil && !errors.Is(err, common.ErrorNotFound):
				return nil, err
			}
			u.Email = email
		}
	}

	p := &u.Profile
	set(&p.FullName, upd.FullName)
	set(&p.Phone, upd.Phone)
	set(&p.FirstName, upd.FirstName)
	set(&p.LastName, upd.LastName)
	set(&p.BirthDate, upd.BirthDate)
	set(&p.Country, upd.Country)
	set(&p.City, upd.City)
	set(&p.Alias, upd.Alias)
	set(&p.Nationality, upd.Nationality)
	set(&p.DocumentType, upd.DocumentType)
	set(&p.DocumentNumber, upd.DocumentNumber)
	set(&p.Reference, upd.Reference)
	set(&p.Currency, upd.Currency)
	set(&p.Language, upd.Language)
	if w := upd.Wallet; w != nil {
		if w.USDT != nil {
			p.Wallet.USDT = *w.USDT
		}
		if w.USDC != nil {
			p.Wallet.USDC = *w.USDC
		}
	}
	if upd.Settings != nil {
		u.Settings = *upd.Settings
	}

	if upd.OnboardingCompleted != nil {
		u.OnboardingCompleted = *upd.OnboardingCompleted
	} else if p.Complete() {
		u.OnboardingCompleted = true
	}

	if err := s.store.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// SaveOnboarding stores the onboarding answers and marks onboarding done.
func (s *UserService) SaveOnboarding(ctx context.Context, id string, in OnboardingInput) (*models.User, error) {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	u.Profile.FirstName = strings.TrimSpace(in.FirstName)
	u.Profile.LastName = strings.TrimSpace(in.LastName)
	u.Profile.BirthDate = strings.TrimSpace(in.BirthDate)
	u.Profile.Country = strings.TrimSpace(in.Country)
	u.Profile.City = strings.TrimSpace(in.City)
	if u.Profile.FullName == "" {
		u.Profile.FullName = strings.TrimSpace(u.Profile.FirstName + " " + u.Profile.LastName)
	}
	u.OnboardingCompleted = true

	if err := s.store.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Referrals lists the users who registered with id's referral code.
func (s *UserService) Referrals(ctx context.Context, id string) ([]*models.User, error) {
	return s.store.ListReferredBy(ctx, id)
}

// ListUsers returns one page of users, newest first. Out of range paging
// values fall back to the defaults.
func (s *UserService) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	list, total, err := s.store.List(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	pages := (total + int64(limit) - 1) / int64(limit)
	return &UserPage{Users: list, Total: total, Page: page, Limit: limit, Pages: pages}, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Warn(ctx, "user deleted", "user_id", id)
	return nil
}

// ChangeRole sets the role of user id. Only "user" and "admin" are valid.
func (s *UserService) ChangeRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrorValidation, role)
	}
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role == role {
		return u, nil
	}

	prev := u.Role
	u.Role = role
	if err := s.store.Save(ctx, u); err != nil {
		return nil, err
	}
	s.log.Warn(ctx, "user role changed", "user_id", id, "from", prev, "to", role)
	return u, nil
}
