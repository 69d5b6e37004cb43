package users

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. Uniqueness rules match the
// database backends so services behave the same against it.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]*models.User),
		now:   time.Now,
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, u *models.User) error {
	if u.Credentials == nil || u.Credentials.PasswordHash == "" {
		return fmt.Errorf("%w: password hash is required", common.ErrorValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUniqueLocked(u, ""); err != nil {
		return err
	}

	now := r.now().UTC()
	u.ID = uuid.NewString()
	u.CreatedAt, u.UpdatedAt = now, now
	r.users[u.ID] = cloneUser(u, true)
	return nil
}

func (r *MemoryRepository) checkUniqueLocked(u *models.User, selfID string) error {
	for id, existing := range r.users {
		if id == selfID {
			continue
		}
		if existing.Email == u.Email || existing.Username == u.Username {
			return common.ErrDuplicateIdentity
		}
		if u.ReferralCode != "" && existing.ReferralCode == u.ReferralCode {
			return common.ErrDuplicateReferralCode
		}
	}
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string, opts ...FindOption) (*models.User, error) {
	return r.findOne(func(u *models.User) bool { return u.ID == id }, applyFindOptions(opts))
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string, opts ...FindOption) (*models.User, error) {
	return r.findOne(func(u *models.User) bool { return u.Email == email }, applyFindOptions(opts))
}

func (r *MemoryRepository) FindByUsername(ctx context.Context, username string, opts ...FindOption) (*models.User, error) {
	return r.findOne(func(u *models.User) bool { return u.Username == username }, applyFindOptions(opts))
}

func (r *MemoryRepository) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.findOne(func(u *models.User) bool { return code != "" && u.ReferralCode == code }, FindOptions{})
}

func (r *MemoryRepository) findOne(match func(*models.User) bool, o FindOptions) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			return cloneUser(u, o.WithSecrets), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) Update(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[u.ID]
	if !ok {
		return common.ErrorNotFound
	}
	if err := r.checkUniqueLocked(u, u.ID); err != nil {
		return err
	}

	next := cloneUser(u, true)
	if u.Credentials == nil {
		next.Credentials = cloneCredentials(stored.Credentials)
	}
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = r.now().UTC()
	r.users[u.ID] = next

	u.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *MemoryRepository) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, u := range r.users {
		c := u.Credentials
		if c == nil || c.ResetTokenHash == "" || c.ResetTokenHash != tokenHash {
			continue
		}
		if c.ResetExpiresAt == nil || !c.ResetExpiresAt.After(now) {
			continue
		}
		c.PasswordHash = newPasswordHash
		c.ClearReset()
		u.UpdatedAt = now
		return id, nil
	}
	return "", common.ErrorNotFound
}

func (r *MemoryRepository) AddRewardPoints(ctx context.Context, id string, points int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.RewardPoints += points
	u.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, offset, limit int) ([]*models.User, error) {
	all := r.sorted(func(*models.User) bool { return true })
	if offset >= len(all) {
		return []*models.User{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

func (r *MemoryRepository) ListReferredBy(ctx context.Context, referrerID string) ([]*models.User, error) {
	return r.sorted(func(u *models.User) bool { return referrerID != "" && u.ReferredBy == referrerID }), nil
}

// sorted returns matching users newest first; ties keep a stable id order.
func (r *MemoryRepository) sorted(match func(*models.User) bool) []*models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*models.User{}
	for _, u := range r.users {
		if match(u) {
			result = append(result, cloneUser(u, false))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.users, id)
	return nil
}

func cloneUser(u *models.User, withSecrets bool) *models.User {
	c := *u
	c.ClearPendingPassword()
	c.Credentials = nil
	if withSecrets {
		c.Credentials = cloneCredentials(u.Credentials)
	}
	return &c
}

func cloneCredentials(c *models.Credentials) *models.Credentials {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ResetExpiresAt != nil {
		t := *c.ResetExpiresAt
		cp.ResetExpiresAt = &t
	}
	return &cp
}
