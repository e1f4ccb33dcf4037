// Package hasher digests ephemeral paired values before storage.
package hasher

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt digests values with bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher with the given cost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash generates a bcrypt digest from plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare checks whether plaintext matches a digest.
func (h *Bcrypt) Compare(digest []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(digest, []byte(plaintext)) == nil
}

// GenerateRaw produces a fresh ephemeral value: 32 bytes of
// cryptographic randomness, hex encoded.
func GenerateRaw() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Fake is a no-op hasher for tests (NOT FOR PRODUCTION).
type Fake struct{}

// Hash returns the plaintext bytes unchanged.
func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte(plaintext), nil
}

// Compare does simple equality.
func (Fake) Compare(digest []byte, plaintext string) bool {
	return string(digest) == plaintext
}
