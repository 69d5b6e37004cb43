package services

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bantx/internal/logging"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

var (
	keysOnce sync.Once
	keys     *auth.KeyMaterial
	keysErr  error
)

func testKeys(t *testing.T) *auth.KeyMaterial {
	t.Helper()
	keysOnce.Do(func() { keys, keysErr = auth.GenerateKeyMaterial(2048) })
	require.NoError(t, keysErr)
	return keys
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type env struct {
	repos  *repomanager.MemoryRepositoryManager
	tokens *auth.TokenService
	clock  *clock
	auth   *AuthService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	c := newClock()
	tokens, err := auth.NewTokenService(testKeys(t), auth.WithClock(c.Now))
	require.NoError(t, err)

	repos := repomanager.NewMemoryRepositoryManager()
	a := NewAuthService(repos, tokens, "s3cr3t-admin", logging.Discard())
	a.now = c.Now
	return &env{repos: repos, tokens: tokens, clock: c, auth: a}
}

func (e *env) register(t *testing.T, username, email, password string) *models.User {
	t.Helper()
	u, err := e.auth.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: password})
	require.NoError(t, err)
	return u
}

func (e *env) secrets(t *testing.T, id string) *models.Credentials {
	t.Helper()
	u, err := e.repos.Users().FindByID(context.Background(), id, users.WithSecrets())
	require.NoError(t, err)
	require.NotNil(t, u.Credentials)
	return u.Credentials
}

type sentMail struct {
	to, subject, body string
}

type fakeMail struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMail) Send(ctx context.Context, to, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, htmlBody})
	return nil
}

var resetLinkRe = regexp.MustCompile(`/reset-password/([0-9a-f]{64})`)

func ptr[T any](v T) *T { return &v }

// failingUsers fails selected calls of an otherwise working repository.
type failingUsers struct {
	users.Repository
	err error
}

func (f *failingUsers) FindByEmail(ctx context.Context, email string, opts ...users.FindOption) (*models.User, error) {
	return nil, f.err
}

func (f *failingUsers) FindByID(ctx context.Context, id string, opts ...users.FindOption) (*models.User, error) {
	return nil, f.err
}

func (f *failingUsers) List(ctx context.Context, offset, limit int) ([]*models.User, error) {
	return nil, f.err
}
