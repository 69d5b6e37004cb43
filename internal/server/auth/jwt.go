// Package auth issues and verifies the RS256 access and refresh tokens and
// carries the authenticated Identity through a request context.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultIssuer     = "bantx"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the registered claims plus the role (access tokens only) and
// the token type. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role,omitempty"`
	Type TokenType   `json:"typ"`
}

// TokenService signs and verifies tokens with a KeyMaterial value.
type TokenService struct {
	keys       *KeyMaterial
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*TokenService)

// WithClock replaces time.Now for both issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// WithTTL overrides token lifetimes; zero values keep the defaults.
func WithTTL(access, refresh time.Duration) Option {
	return func(s *TokenService) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(s *TokenService) { s.issuer = issuer }
}

func NewTokenService(keys *KeyMaterial, opts ...Option) (*TokenService, error) {
	if keys == nil || keys.public == nil {
		return nil, errors.New("key material is required")
	}
	s := &TokenService{
		keys:       keys,
		issuer:     DefaultIssuer,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken signs a short-lived token carrying the user's role.
func (s *TokenService) IssueAccessToken(userID string, role models.Role) (string, error) {
	return s.sign(userID, role, TokenTypeAccess, s.accessTTL)
}

// IssueRefreshToken signs a long-lived token with no role claim.
func (s *TokenService) IssueRefreshToken(userID string) (string, error) {
	return s.sign(userID, "", TokenTypeRefresh, s.refreshTTL)
}

func (s *TokenService) sign(userID string, role models.Role, typ TokenType, ttl time.Duration) (string, error) {
	if !s.keys.CanSign() {
		return "", ErrSigningUnavailable
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
		Type: typ,
	})
	return token.SignedString(s.keys.private)
}

// Verify checks signature, algorithm, issuer and expiry. It returns
// common.ErrTokenExpired for an otherwise valid but expired token and
// common.ErrInvalidToken for everything else.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.keys.public, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// VerifyAccess is Verify plus a check that the token is an access token.
func (s *TokenService) VerifyAccess(tokenString string) (*Claims, error) {
	return s.verifyType(tokenString, TokenTypeAccess)
}

// VerifyRefresh is Verify plus a check that the token is a refresh token.
func (s *TokenService) VerifyRefresh(tokenString string) (*Claims, error) {
	return s.verifyType(tokenString, TokenTypeRefresh)
}

func (s *TokenService) verifyType(tokenString string, want TokenType) (*Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
