// Package crypto implements the credential store: API key and password
// hashing, random material and tenant session tokens.
package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt cost used for API keys and passwords.
const HashCost = 10

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches hash. The comparison is constant-time.
func VerifyPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
