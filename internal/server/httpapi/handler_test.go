package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/logging"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
	sc "github.com/dmitrijs2005/bantx/internal/server/config"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bantx/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminSecret = "let-me-in"

var (
	keysOnce sync.Once
	keys     *auth.KeyMaterial
	keysErr  error
)

type captureMail struct {
	mu   sync.Mutex
	body []string
}

func (m *captureMail) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = append(m.body, htmlBody)
	return nil
}

func (m *captureMail) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.body) == 0 {
		return ""
	}
	return m.body[len(m.body)-1]
}

type testServer struct {
	router http.Handler
	repos  *repomanager.MemoryRepositoryManager
	mail   *captureMail
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	keysOnce.Do(func() { keys, keysErr = auth.GenerateKeyMaterial(2048) })
	require.NoError(t, keysErr)

	tokens, err := auth.NewTokenService(keys)
	require.NoError(t, err)

	log := logging.Discard()
	repos := repomanager.NewMemoryRepositoryManager()
	mail := &captureMail{}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}

	router := NewRouter(Deps{
		Auth:      services.NewAuthService(repos, tokens, adminSecret, log),
		Reset:     services.NewPasswordResetService(repos.Users(), mail, "http://app.test", time.Hour, log),
		Users:     services.NewUserService(repos.Users(), log),
		Documents: services.NewDocumentService(repos.Users(), &sc.Config{S3Bucket: "kyc"}, log),
		Health:    repos,
		Log:       log,
		Options:   opts,
	})
	return &testServer{router: router, repos: repos, mail: mail}
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	cookies []*http.Cookie
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == common.RefreshTokenCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", common.RefreshTokenCookieName)
	return nil
}

func (s *testServer) register(t *testing.T, username, email, password, referral string) map[string]any {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"username": username, "email": email, "password": password, "referredBy": referral,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[map[string]any](t, rec)["user"].(map[string]any)
}

func (s *testServer) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
		"email": email, "password": password,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[loginResponse](t, rec).Token, refreshCookie(t, rec)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, Options{})

	user := s.register(t, "alice", "Alice@Example.com", "secret1", "")
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "password")

	access, cookie := s.login(t, "alice@example.com", "secret1")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/api/auth", cookie.Path)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)

	rec := s.do(t, call{method: http.MethodGet, path: "/api/auth/me", token: access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeBody[map[string]any](t, rec)["username"])

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/refresh-token", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fresh := decodeBody[refreshResponse](t, rec).AccessToken
	require.NotEmpty(t, fresh)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/auth/me", token: fresh})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/logout", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := refreshCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/refresh-token", cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "bob", "bob@example.com", "secret1", "")

	tests := []struct {
		name string
		body any
		code string
	}{
		{"malformed json", "not-an-object", "validation_error"},
		{"missing email", map[string]string{"username": "carl", "password": "secret1"}, "validation_error"},
		{"bad email", map[string]string{"username": "carl", "email": "nope", "password": "secret1"}, "validation_error"},
		{"short password", map[string]string{"username": "carl", "email": "c@example.com", "password": "123"}, "validation_error"},
		{"duplicate email", map[string]string{"username": "carl", "email": "BOB@example.com", "password": "secret1"}, "duplicate_identity"},
		{"duplicate username", map[string]string{"username": "bob", "email": "c@example.com", "password": "secret1"}, "duplicate_identity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: tt.body})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decodeBody[errorResponse](t, rec).Error)
		})
	}
}

func TestRegister_ReferralBonus(t *testing.T) {
	s := newTestServer(t, Options{})
	referrer := s.register(t, "dana", "dana@example.com", "secret1", "")
	code := referrer["referralCode"].(string)
	require.NotEmpty(t, code)

	referred := s.register(t, "eve", "eve@example.com", "secret1", code)
	assert.Equal(t, referrer["id"], referred["referredBy"])

	access, _ := s.login(t, "dana@example.com", "secret1")
	rec := s.do(t, call{method: http.MethodGet, path: "/api/auth/me", token: access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, services.ReferralBonus, decodeBody[map[string]any](t, rec)["rewardPoints"])

	rec = s.do(t, call{method: http.MethodGet, path: "/api/users/referrals", token: access})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 1, got["count"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "frank", "frank@example.com", "secret1", "")

	for _, body := range []map[string]string{
		{"email": "frank@example.com", "password": "wrong-one"},
		{"email": "nobody@example.com", "password": "secret1"},
	} {
		rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: body})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_credentials", decodeBody[errorResponse](t, rec).Error)
	}
}

func TestRefreshToken_Failures(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "gina", "gina@example.com", "secret1", "")
	access, cookie := s.login(t, "gina@example.com", "secret1")

	t.Run("missing", func(t *testing.T) {
		rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/refresh-token"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("garbage", func(t *testing.T) {
		rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/refresh-token",
			cookies: []*http.Cookie{{Name: common.RefreshTokenCookieName, Value: "abc.def.ghi"}}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("access token used as refresh", func(t *testing.T) {
		rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/refresh-token",
			body: refreshRequest{RefreshToken: access}})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
	t.Run("body fallback", func(t *testing.T) {
		rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/refresh-token",
			body: refreshRequest{RefreshToken: cookie.Value}})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLogout_WithoutCookie(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/logout"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMe_Unauthorized(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, call{method: http.MethodGet, path: "/api/auth/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/auth/me", token: "not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decodeBody[errorResponse](t, rec).Error)
}

var resetTokenRe = regexp.MustCompile(`/reset-password/([0-9a-f]{64})`)

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "hank", "hank@example.com", "secret1", "")

	rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/forgot-password", body: forgotPasswordRequest{Email: "bad"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unknown := s.do(t, call{method: http.MethodPost, path: "/api/auth/forgot-password", body: forgotPasswordRequest{Email: "ghost@example.com"}})
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.Empty(t, s.mail.last())

	known := s.do(t, call{method: http.MethodPost, path: "/api/auth/forgot-password", body: forgotPasswordRequest{Email: "hank@example.com"}})
	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, unknown.Body.String(), known.Body.String())

	m := resetTokenRe.FindStringSubmatch(s.mail.last())
	require.Len(t, m, 2)
	token := m[1]

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/reset-password", body: resetPasswordRequest{Token: token, NewPassword: "short"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeBody[errorResponse](t, rec).Error)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/reset-password", body: resetPasswordRequest{Token: token, NewPassword: "brand-new-pass"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/reset-password", body: resetPasswordRequest{Token: token, NewPassword: "another-pass"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_reset_token", decodeBody[errorResponse](t, rec).Error)

	s.login(t, "hank@example.com", "brand-new-pass")
}

func TestAuthRequests_BrowserFieldNames(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: map[string]any{
		"username": "olga", "email": "olga@example.com", "password": "secret1",
		"profileData": map[string]string{"country": "UY"},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	profile := decodeBody[map[string]any](t, rec)["user"].(map[string]any)["profileData"].(map[string]any)
	assert.Equal(t, "olga", profile["fullName"])
	assert.Equal(t, "UY", profile["pais"])

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/register", body: map[string]any{
		"username": "pablo", "email": "pablo@example.com", "password": "secret1",
		"profileData": map[string]string{"currency": "EUR"},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/create-admin", body: map[string]string{
		"username": "boss", "email": "boss@example.com", "password": "super-secret", "secretKey": adminSecret,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "boss", decodeBody[map[string]any](t, rec)["user"].(map[string]any)["profileData"].(map[string]any)["fullName"])

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/forgot-password", body: map[string]string{"email": "olga@example.com"}})
	require.Equal(t, http.StatusOK, rec.Code)
	m := resetTokenRe.FindStringSubmatch(s.mail.last())
	require.Len(t, m, 2)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/reset-password", body: map[string]string{
		"token": m[1], "password": "brand-new-pass",
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/auth/reset-password", body: map[string]string{
		"token": m[1], "newPassword": "brand-new-pass",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s.login(t, "olga@example.com", "brand-new-pass")
}

func createAdmin(t *testing.T, s *testServer) string {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/create-admin", body: createAdminRequest{
		Username: "root", Email: "root@example.com", Password: "super-secret", SecretKey: adminSecret,
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	access, _ := s.login(t, "root@example.com", "super-secret")
	return access
}

func TestCreateAdmin(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/create-admin", body: createAdminRequest{
		Username: "mallory", Email: "m@example.com", Password: "super-secret", SecretKey: "guess",
	}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	access := createAdmin(t, s)
	rec = s.do(t, call{method: http.MethodGet, path: "/api/auth/me", token: access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decodeBody[map[string]any](t, rec)["role"])
}

func TestProfileAndOnboarding(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "ivy", "ivy@example.com", "secret1", "")
	access, _ := s.login(t, "ivy@example.com", "secret1")

	rec := s.do(t, call{method: http.MethodPut, path: "/api/users/profile", token: access, body: map[string]any{
		"nombre": "Ivy",
		"wallet": map[string]float64{"usdt": 12.5},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile := decodeBody[map[string]any](t, rec)["profileData"].(map[string]any)
	assert.Equal(t, "Ivy", profile["nombre"])
	assert.EqualValues(t, 12.5, profile["wallet"].(map[string]any)["usdt"])

	rec = s.do(t, call{method: http.MethodPut, path: "/api/users/profile", token: access, body: map[string]any{"email": "nope"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/api/users/onboarding", token: access, body: map[string]string{
		"nombre": "Ivy", "apellido": "Stone", "fechaNacimiento": "1990-01-02", "pais": "AR", "ciudad": "Rosario",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody[map[string]any](t, rec)["onboardingCompleted"])

	rec = s.do(t, call{method: http.MethodGet, path: "/api/users/profile", token: access})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Stone", decodeBody[map[string]any](t, rec)["profileData"].(map[string]any)["apellido"])
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, Options{})
	target := s.register(t, "jack", "jack@example.com", "secret1", "")
	userAccess, _ := s.login(t, "jack@example.com", "secret1")
	adminAccess := createAdmin(t, s)
	id := target["id"].(string)

	rec := s.do(t, call{method: http.MethodGet, path: "/api/users", token: userAccess})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/users?page=1&limit=1", token: adminAccess})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeBody[services.UserPage](t, rec)
	assert.EqualValues(t, 2, page.Total)
	assert.Len(t, page.Users, 1)
	assert.EqualValues(t, 2, page.Pages)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/users/" + id + "/document", token: adminAccess})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, call{method: http.MethodPut, path: "/api/users/" + id + "/role", token: adminAccess, body: changeRoleRequest{Role: "root"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, call{method: http.MethodPut, path: "/api/users/" + id + "/role", token: adminAccess, body: changeRoleRequest{Role: "admin"}})
	require.Equal(t, http.StatusOK, rec.Code)

	// role is read from the store, so the old token now passes the admin check
	rec = s.do(t, call{method: http.MethodGet, path: "/api/users", token: userAccess})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, call{method: http.MethodDelete, path: "/api/users/" + id, token: adminAccess})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, call{method: http.MethodDelete, path: "/api/users/" + id, token: adminAccess})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, call{method: http.MethodGet, path: "/api/auth/me", token: userAccess})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimitRequests: 2, RateLimitWindow: time.Minute})

	for i := 0; i < 2; i++ {
		rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/logout"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := s.do(t, call{method: http.MethodPost, path: "/api/auth/logout"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeBody[errorResponse](t, rec).Error)

	rec = s.do(t, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Options{CORSAllowedOrigins: []string{"http://app.test"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
