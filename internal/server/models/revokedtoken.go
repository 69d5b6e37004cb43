package models

import "time"

// RevokedToken marks a refresh token id (jti) that must no longer be
// accepted. It can be forgotten once ExpiresAt has passed since the token
// itself is dead by then.
type RevokedToken struct {
	TokenID   string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
