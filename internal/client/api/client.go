// Package api is a small client for the BANTX HTTP API. It keeps the access
// token in memory and the refresh token in a cookie jar, the way a browser
// session would.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/netx"
)

// ErrNotLoggedIn is returned by calls that need an access token before Login.
var ErrNotLoggedIn = errors.New("not logged in")

// Error is a non-2xx answer from the API.
type Error struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Wallet, Profile and User mirror the public user projection of the API.
type Wallet struct {
	USDT float64 `json:"usdt"`
	USDC float64 `json:"usdc"`
}

type Profile struct {
	FirstName string `json:"nombre,omitempty"`
	LastName  string `json:"apellido,omitempty"`
	Currency  string `json:"currency"`
	Language  string `json:"language"`
	Wallet    Wallet `json:"wallet"`
	KYCKey    string `json:"kycDocumentKey,omitempty"`
}

type User struct {
	ID                  string    `json:"id"`
	Username            string    `json:"username"`
	Email               string    `json:"email"`
	Role                string    `json:"role"`
	Status              string    `json:"status"`
	ReferralCode        string    `json:"referralCode"`
	ReferredBy          string    `json:"referredBy,omitempty"`
	RewardPoints        int       `json:"rewardPoints"`
	OnboardingCompleted bool      `json:"onboardingCompleted"`
	Profile             Profile   `json:"profileData"`
	CreatedAt           time.Time `json:"createdAt"`
}

type Client struct {
	base *url.URL
	http *http.Client

	mu          sync.RWMutex
	accessToken string
}

// New returns a client for the API at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout, Jar: jar}}, nil
}

func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) setAccessToken(t string) {
	c.mu.Lock()
	c.accessToken = t
	c.mu.Unlock()
}

func (c *Client) LoggedIn() bool { return c.AccessToken() != "" }

func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		token := c.AccessToken()
		if token == "" {
			return ErrNotLoggedIn
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type userEnvelope struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
}

func (c *Client) Register(ctx context.Context, username, email, password, referralCode string) (*User, error) {
	var resp userEnvelope
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"username": username, "email": email, "password": password, "referredBy": referralCode,
	}, &resp, false)
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// ProvisionAdmin creates an admin account with the server's admin secret.
func (c *Client) ProvisionAdmin(ctx context.Context, username, email, password, adminSecret string) (*User, error) {
	var resp userEnvelope
	err := c.do(ctx, http.MethodPost, "/api/auth/create-admin", map[string]string{
		"username": username, "email": email, "password": password, "secretKey": adminSecret,
	}, &resp, false)
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Login stores the access token; the refresh cookie lands in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var resp struct {
		Token string `json:"token"`
		User  *User  `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	}, &resp, false)
	if err != nil {
		return nil, err
	}
	c.setAccessToken(resp.Token)
	return resp.User, nil
}

// Refresh swaps the refresh cookie for a new access token.
func (c *Client) Refresh(ctx context.Context) error {
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh-token", nil, &resp, false); err != nil {
		return err
	}
	c.setAccessToken(resp.AccessToken)
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, false)
	c.setAccessToken("")
	return err
}

// Me returns the signed-in user. An expired access token is refreshed once.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &u, true)
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized && apiErr.Code == "token_expired" {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
		err = c.do(ctx, http.MethodGet, "/api/auth/me", nil, &u, true)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, nil, false)
}

func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token": token, "newPassword": password,
	}, nil, false)
}

// UploadDocument asks for a presigned URL and PUTs data to it. It returns
// the stored object key.
func (c *Client) UploadDocument(ctx context.Context, contentType string, data []byte) (string, error) {
	var resp struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/users/profile/document", nil, &resp, true); err != nil {
		return "", err
	}
	if err := netx.UploadToS3PresignedURL(ctx, c.http, resp.URL, contentType, data); err != nil {
		return "", err
	}
	return resp.Key, nil
}

// Health reports whether the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, false)
}

// RefreshCookieSet reports whether the jar holds a refresh cookie for the
// auth endpoints.
func (c *Client) RefreshCookieSet() bool {
	u := *c.base
	u.Path = "/api/auth/refresh-token"
	for _, ck := range c.http.Jar.Cookies(&u) {
		if ck.Name == common.RefreshTokenCookieName && ck.Value != "" {
			return true
		}
	}
	return false
}
