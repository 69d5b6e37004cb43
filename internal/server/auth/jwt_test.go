package auth

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keysOnce sync.Once
	keys     *KeyMaterial
	keysErr  error
)

func testKeys(t *testing.T) *KeyMaterial {
	t.Helper()
	keysOnce.Do(func() { keys, keysErr = GenerateKeyMaterial(2048) })
	require.NoError(t, keysErr)
	return keys
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newService(t *testing.T, km *KeyMaterial, clock *fakeClock) *TokenService {
	t.Helper()
	s, err := NewTokenService(km, WithClock(clock.Now))
	require.NoError(t, err)
	return s
}

func TestAccessToken_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := newService(t, testKeys(t), clock)

	tok, err := s.IssueAccessToken("user-1", models.RoleAdmin)
	require.NoError(t, err)

	claims, err := s.VerifyAccess(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, clock.t.Add(15*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestAccessToken_ExpiryBoundary(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	s := newService(t, testKeys(t), clock)

	tok, err := s.IssueAccessToken("user-1", models.RoleUser)
	require.NoError(t, err)

	clock.t = start.Add(14 * time.Minute)
	_, err = s.Verify(tok)
	require.NoError(t, err, "still valid at t+14m")

	clock.t = start.Add(16 * time.Minute)
	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestRefreshToken_NoRoleSevenDays(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	s := newService(t, testKeys(t), clock)

	tok, err := s.IssueRefreshToken("user-2")
	require.NoError(t, err)

	claims, err := s.VerifyRefresh(tok)
	require.NoError(t, err)
	assert.Empty(t, claims.Role)
	assert.Equal(t, TokenTypeRefresh, claims.Type)

	clock.t = start.Add(7*24*time.Hour - time.Minute)
	_, err = s.VerifyRefresh(tok)
	require.NoError(t, err)

	clock.t = start.Add(7*24*time.Hour + time.Minute)
	_, err = s.VerifyRefresh(tok)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestVerify_TypeMismatch(t *testing.T) {
	s := newService(t, testKeys(t), &fakeClock{t: time.Now()})

	refresh, err := s.IssueRefreshToken("u")
	require.NoError(t, err)
	_, err = s.VerifyAccess(refresh)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	access, err := s.IssueAccessToken("u", models.RoleUser)
	require.NoError(t, err)
	_, err = s.VerifyRefresh(access)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_WrongKey(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	s := newService(t, testKeys(t), clock)

	other, err := GenerateKeyMaterial(2048)
	require.NoError(t, err)
	foreign := newService(t, other, clock)

	tok, err := foreign.IssueAccessToken("u", models.RoleAdmin)
	require.NoError(t, err)

	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	s := newService(t, testKeys(t), &fakeClock{t: time.Now()})

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: models.RoleAdmin,
		Type: TokenTypeAccess,
	})
	tok, err := hs.SignedString([]byte("guessable"))
	require.NoError(t, err)

	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	s := newService(t, testKeys(t), &fakeClock{t: time.Now()})

	for _, in := range []string{"", "not.a.jwt", "abc"} {
		_, err := s.Verify(in)
		assert.ErrorIs(t, err, common.ErrInvalidToken, in)
	}
}

func TestVerifyOnly_PublicKeyMaterial(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	full := newService(t, testKeys(t), clock)
	verifyOnly := newService(t, testKeys(t).Public(), clock)

	tok, err := full.IssueAccessToken("u", models.RoleUser)
	require.NoError(t, err)

	claims, err := verifyOnly.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u", claims.Subject)

	_, err = verifyOnly.IssueAccessToken("u", models.RoleUser)
	assert.True(t, errors.Is(err, ErrSigningUnavailable))
}

func TestWithTTL(t *testing.T) {
	s, err := NewTokenService(testKeys(t), WithTTL(time.Minute, 0))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, s.AccessTTL())
	assert.Equal(t, DefaultRefreshTTL, s.RefreshTTL())
}

func TestNewTokenService_NilKeys(t *testing.T) {
	_, err := NewTokenService(nil)
	assert.Error(t, err)
}

func TestLoadKeyMaterial_FromPEMFiles(t *testing.T) {
	km := testKeys(t)
	dir := t.TempDir()

	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privDER, err := x509.MarshalPKCS8PrivateKey(km.private)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600))

	pubDER, err := x509.MarshalPKIXPublicKey(km.public)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	loaded, err := LoadKeyMaterial(privPath, pubPath)
	require.NoError(t, err)
	assert.True(t, loaded.CanSign())

	pubOnly, err := LoadKeyMaterial("", pubPath)
	require.NoError(t, err)
	assert.False(t, pubOnly.CanSign())

	derived, err := LoadKeyMaterial(privPath, "")
	require.NoError(t, err)
	assert.True(t, derived.public.Equal(km.public))

	_, err = LoadKeyMaterial("", "")
	assert.Error(t, err)

	_, err = LoadKeyMaterial(filepath.Join(dir, "missing.pem"), "")
	assert.Error(t, err)
}

func TestNewKeyMaterial_Mismatch(t *testing.T) {
	other, err := GenerateKeyMaterial(2048)
	require.NoError(t, err)

	_, err = NewKeyMaterial(testKeys(t).private, other.public)
	assert.Error(t, err)
}

func TestEncodePEM_ParsesBack(t *testing.T) {
	km := testKeys(t)

	privPEM, pubPEM, err := km.EncodePEM()
	require.NoError(t, err)

	parsed, err := ParseKeyMaterial(privPEM, pubPEM)
	require.NoError(t, err)
	assert.True(t, parsed.CanSign())
	assert.True(t, parsed.public.Equal(km.public))

	privPEM, pubPEM, err = km.Public().EncodePEM()
	require.NoError(t, err)
	assert.Nil(t, privPEM)
	assert.NotEmpty(t, pubPEM)
}
