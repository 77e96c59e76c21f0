package accounts

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher hashes passwords with bcrypt at a fixed cost.
type BcryptHasher struct {
	Cost int

	dummyOnce sync.Once
	dummy     []byte
}

var _ PasswordHasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when cost is zero.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

// HashPassword will generate a password hash
func (h *BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	return string(out), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (h *BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// DummyHash returns a valid hash nobody knows the password for. Comparing
// against it keeps unknown-identifier logins as slow as real ones.
func (h *BcryptHasher) DummyHash() string {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte(newSecret(24)), h.cost())
	})
	return string(h.dummy)
}

func (h *BcryptHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}
