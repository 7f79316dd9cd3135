// Package auth holds the credential primitives used by the auth service:
// password hashing, JWT issuance, single-use email tokens and Google ID
// token validation.
package auth

import (
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

type VerifyResult int

const (
	VerifyFailed VerifyResult = iota
	VerifySuccess
)

// BcryptHasher hashes passwords with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 12
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	return string(hash), nil
}

// Verify never errors: a malformed hash is reported as VerifyFailed.
func (h *BcryptHasher) Verify(hash string, password string) VerifyResult {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return VerifyFailed
	}
	return VerifySuccess
}
