package crypto

import (
	"github.com/gofrs/uuid/v5"
	"golang.org/x/crypto/bcrypt"
)

// GenerateAPIKey returns a new random project API key together with its
// bcrypt hash. Only the hash is ever persisted.
func GenerateAPIKey() (raw, hash string, err error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", "", err
	}
	raw = id.String()
	h, err := bcrypt.GenerateFromPassword([]byte(raw), HashCost)
	if err != nil {
		return "", "", err
	}
	return raw, string(h), nil
}

// VerifyAPIKey reports whether raw matches the stored hash.
func VerifyAPIKey(raw, hash string) bool {
	if raw == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
