package security

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher derives and verifies portal credential hashes.
// The cost factor comes from configuration so lower environments can run
// cheaper rounds than production.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher clamps the configured cost into bcrypt's supported range.
// A non-positive cost selects the library default.
func NewBcryptHasher(cost int) *BcryptHasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the salted hash for a plaintext password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare returns a non-nil error when password does not match hash.
func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
