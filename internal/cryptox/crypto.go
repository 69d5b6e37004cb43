// Package cryptox holds the credential primitives: bcrypt password hashing
// and one-time reset tokens that are stored only as SHA-256 digests.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/bantx/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for stored passwords.
const PasswordCost = 10

// ResetTokenSize is the number of random bytes in a reset token; the token
// travels hex-encoded.
const ResetTokenSize = 32

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// HashPassword returns the bcrypt hash of plain.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password is too long", common.ErrorValidation)
		}
		return "", err
	}
	return string(h), nil
}

// ComparePassword reports whether plain matches the stored bcrypt hash.
func ComparePassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IsHashed reports whether s has the shape of a bcrypt hash.
func IsHashed(s string) bool {
	if len(s) != 60 {
		return false
	}
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// NewResetToken returns a fresh reset token and the digest to persist.
func NewResetToken() (plain string, digest string, err error) {
	plain, err = common.MakeRandHexString(ResetTokenSize)
	if err != nil {
		return "", "", err
	}
	return plain, HashResetToken(plain), nil
}

// HashResetToken returns the hex SHA-256 digest of a reset token.
func HashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// SecretsEqual compares two shared secrets in constant time.
func SecretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
