package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/samber/oops"
)

const secretTokenBytes = 32

// GenerateSecret returns a random single-use token and the digest to persist.
// Only the digest is stored; the raw token leaves the process once, by email.
func GenerateSecret() (token string, hash string, err error) {
	buf := make([]byte, secretTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("SECRET_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(buf)
	return token, HashSecret(token), nil
}

// HashSecret is the digest lookups use to find a user by an emailed token.
func HashSecret(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}
