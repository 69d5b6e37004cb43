// Package models holds the server-side domain types shared by repositories,
// services and transports.
package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Status is descriptive only; it does not gate authentication.
type Status string

const (
	StatusActive   Status = "active"
	StatusBlocked  Status = "blocked"
	StatusInactive Status = "inactive"
)

const (
	DefaultCurrency = "USDT"
	DefaultLanguage = "es"
)

type Wallet struct {
	USDT float64 `json:"usdt" bson:"usdt"`
	USDC float64 `json:"usdc" bson:"usdc"`
}

type Profile struct {
	FullName       string `json:"fullName,omitempty" bson:"fullName"`
	Phone          string `json:"phone,omitempty" bson:"phone"`
	FirstName      string `json:"nombre,omitempty" bson:"nombre"`
	LastName       string `json:"apellido,omitempty" bson:"apellido"`
	BirthDate      string `json:"fechaNacimiento,omitempty" bson:"fechaNacimiento"`
	Country        string `json:"pais,omitempty" bson:"pais"`
	City           string `json:"ciudad,omitempty" bson:"ciudad"`
	Alias          string `json:"alias,omitempty" bson:"alias"`
	Nationality    string `json:"nacionalidad,omitempty" bson:"nacionalidad"`
	DocumentType   string `json:"tipoDocumento,omitempty" bson:"tipoDocumento"`
	DocumentNumber string `json:"numeroDocumento,omitempty" bson:"numeroDocumento"`
	Reference      string `json:"referencia,omitempty" bson:"referencia"`
	Currency       string `json:"currency" bson:"currency"`
	Language       string `json:"language" bson:"language"`
	Wallet         Wallet `json:"wallet" bson:"wallet"`
	KYCDocumentKey string `json:"kycDocumentKey,omitempty" bson:"kycDocumentKey"`
}

// Complete reports whether every field required to finish onboarding is set.
func (p Profile) Complete() bool {
	for _, v := range []string{
		p.FirstName, p.LastName, p.BirthDate, p.Country, p.City,
		p.DocumentType, p.DocumentNumber, p.Phone, p.Reference,
	} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

type Settings struct {
	NotificationsEnabled bool `json:"notificationsEnabled" bson:"notificationsEnabled"`
	DarkMode             bool `json:"darkMode" bson:"darkMode"`
	PinEnabled           bool `json:"pinEnabled" bson:"pinEnabled"`
}

// Credentials are the secret fields of a user. They are loaded only when a
// lookup asks for them; a nil *Credentials on a User means "not loaded" and
// repositories leave the stored values untouched on Save.
type Credentials struct {
	PasswordHash   string
	ResetTokenHash string
	ResetExpiresAt *time.Time
}

// ClearReset drops both reset fields together.
func (c *Credentials) ClearReset() {
	c.ResetTokenHash = ""
	c.ResetExpiresAt = nil
}

type User struct {
	ID                  string    `json:"id"`
	Username            string    `json:"username"`
	Email               string    `json:"email"`
	Role                Role      `json:"role"`
	Status              Status    `json:"status"`
	ReferralCode        string    `json:"referralCode"`
	ReferredBy          string    `json:"referredBy,omitempty"`
	RewardPoints        int       `json:"rewardPoints"`
	OnboardingCompleted bool      `json:"onboardingCompleted"`
	Profile             Profile   `json:"profileData"`
	Settings            Settings  `json:"settings"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`

	Credentials *Credentials `json:"-"`

	pendingPassword *string
}

// NewUser returns a user with the default role, status, profile and settings.
func NewUser(username, email string) *User {
	u := &User{
		Username: username,
		Email:    email,
		Role:     RoleUser,
		Status:   StatusActive,
		Profile: Profile{
			Currency: DefaultCurrency,
			Language: DefaultLanguage,
		},
		Settings: Settings{NotificationsEnabled: true},
	}
	u.Normalize()
	return u
}

// NormalizeEmail trims and lowercases an address. Every write and lookup by
// email goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) Normalize() {
	u.Email = NormalizeEmail(u.Email)
	u.Username = strings.TrimSpace(u.Username)
}

// SetPassword records a new plaintext password to be hashed by the next
// Create or Save. Nothing is hashed until then.
func (u *User) SetPassword(plain string) {
	u.pendingPassword = &plain
}

// PendingPassword returns the plaintext set since the last persist, if any.
func (u *User) PendingPassword() (string, bool) {
	if u.pendingPassword == nil {
		return "", false
	}
	return *u.pendingPassword, true
}

func (u *User) ClearPendingPassword() {
	u.pendingPassword = nil
}

// Identity returns the request identity for this user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}
