// Package secrets produces API keys and the bcrypt hashes stored in their
// place.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "stellarbridge/pkg/domain-errors"
)

const (
	keyBytes = 32
	// bcrypt ignores input past 72 bytes.
	maxSecretLen = 72
)

// Generate returns keyBytes of randomness as unpadded base64url.
func Generate() (string, error) {
	buf := make([]byte, keyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash bcrypts secret for storage.
func Hash(secret string) (string, error) {
	switch {
	case secret == "":
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	case len(secret) > maxSecretLen:
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(out), nil
}

// Verify fails with CodeSecurity when secret does not match hash.
func Verify(secret, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return dErrors.New(dErrors.CodeSecurity, "secret does not match")
	default:
		return fmt.Errorf("bcrypt compare: %w", err)
	}
}
