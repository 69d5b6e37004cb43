package common

import "errors"

// Callers match these with errors.Is; repositories and services wrap them
// with %w when adding context.
var (
	// repository specific errors
	ErrorNotFound            = errors.New("not found")
	ErrorAlreadyExists       = errors.New("already exists")
	ErrDuplicateReferralCode = errors.New("duplicate referral code")

	// service specific errors
	ErrorInternal            = errors.New("internal error")
	ErrorValidation          = errors.New("validation error")
	ErrDuplicateIdentity     = errors.New("user already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidOrExpiredReset = errors.New("invalid or expired reset token")

	// token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
)
