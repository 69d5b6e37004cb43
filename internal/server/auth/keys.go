package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSigningUnavailable is returned when a verify-only service is asked to
// issue a token.
var ErrSigningUnavailable = errors.New("signing key not loaded")

// KeyMaterial is the RSA key pair used for RS256. It is loaded once at
// startup and then only read. The private key is optional: a service built
// from Public() can verify but not issue.
type KeyMaterial struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// NewKeyMaterial builds KeyMaterial from parsed keys. A nil public key is
// derived from the private key.
func NewKeyMaterial(private *rsa.PrivateKey, public *rsa.PublicKey) (*KeyMaterial, error) {
	if public == nil && private != nil {
		public = &private.PublicKey
	}
	if public == nil {
		return nil, errors.New("public key is required")
	}
	if private != nil && !private.PublicKey.Equal(public) {
		return nil, errors.New("public key does not match private key")
	}
	return &KeyMaterial{private: private, public: public}, nil
}

// ParseKeyMaterial parses PEM encoded keys. Either argument may be empty,
// but not both.
func ParseKeyMaterial(privatePEM, publicPEM []byte) (*KeyMaterial, error) {
	var (
		priv *rsa.PrivateKey
		pub  *rsa.PublicKey
		err  error
	)
	if len(privatePEM) > 0 {
		if priv, err = jwt.ParseRSAPrivateKeyFromPEM(privatePEM); err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
	}
	if len(publicPEM) > 0 {
		if pub, err = jwt.ParseRSAPublicKeyFromPEM(publicPEM); err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
	}
	return NewKeyMaterial(priv, pub)
}

// LoadKeyMaterial reads PEM files from disk. An empty privatePath gives a
// verify-only KeyMaterial; an empty publicPath derives the public key.
func LoadKeyMaterial(privatePath, publicPath string) (*KeyMaterial, error) {
	var privatePEM, publicPEM []byte
	var err error

	if privatePath != "" {
		if privatePEM, err = os.ReadFile(privatePath); err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
	}
	if publicPath != "" {
		if publicPEM, err = os.ReadFile(publicPath); err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
	}
	return ParseKeyMaterial(privatePEM, publicPEM)
}

// GenerateKeyMaterial creates a fresh key pair. Used by tests and by the
// server when it runs without configured key files in development.
func GenerateKeyMaterial(bits int) (*KeyMaterial, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &KeyMaterial{private: priv, public: &priv.PublicKey}, nil
}

// Public returns a verify-only copy.
func (k *KeyMaterial) Public() *KeyMaterial {
	return &KeyMaterial{public: k.public}
}

func (k *KeyMaterial) CanSign() bool {
	return k.private != nil
}

// EncodePEM returns the private key as PKCS#1 and the public key as PKIX
// PEM blocks, the forms ParseKeyMaterial reads back. privatePEM is nil for a
// verify-only KeyMaterial.
func (k *KeyMaterial) EncodePEM() (privatePEM, publicPEM []byte, err error) {
	der, err := x509.MarshalPKIXPublicKey(k.public)
	if err != nil {
		return nil, nil, fmt.Errorf("encode public key: %w", err)
	}
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	if k.private != nil {
		privatePEM = pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(k.private),
		})
	}
	return privatePEM, publicPEM, nil
}
