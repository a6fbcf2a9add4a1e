// Package hasher verifies stored credentials, primarily the bcrypt
// digests configured for API keys.
package hasher

import (
	"github.com/routeforge/routeforge/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes and verifies credentials with bcrypt.
type Bcrypt struct {
	cost int
}

var _ ports.Hasher = (*Bcrypt)(nil)

// NewBcrypt creates a bcrypt hasher. A cost outside bcrypt's valid
// range falls back to the library default.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash digests a plaintext credential for storage, e.g. an API key
// destined for the server configuration.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
}

// Compare reports whether plaintext matches the stored digest.
// Malformed digests never match.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(plaintext)) == nil
}

// Fake passes credentials through unhashed so tests can configure
// readable keys. Never use it outside tests.
type Fake struct{}

var _ ports.Hasher = Fake{}

func (Fake) Hash(plaintext string) ([]byte, error) {
	return []byte(plaintext), nil
}

func (Fake) Compare(hash []byte, plaintext string) bool {
	return string(hash) == plaintext
}
