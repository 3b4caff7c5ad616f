package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/angelmondragon/ohya-backend/pkg/config"
)

var (
	ErrInvalidHash   = errors.New("invalid password hash")
	ErrEmptyPassword = errors.New("password cannot be empty")
)

// HashPassword encodes password as a PHC-style argon2id string.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	h, err := newArgonHash(password, paramsFromConfig(cfg))
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

// VerifyPassword reports whether password matches encoded. Seeded and
// imported accounts may carry bcrypt hashes; those verify too.
func VerifyPassword(password, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
	}

	stored, err := parseArgonHash(encoded)
	if err != nil {
		return false, err
	}
	computed := stored.params.derive(password, stored.salt)
	return subtle.ConstantTimeCompare(stored.key, computed) == 1, nil
}

// NeedsRehash is true for anything that is not a current argon2id hash.
func NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	h, err := parseArgonHash(encoded)
	return err != nil || h.version != argon2.Version
}

func isBcrypt(encoded string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encoded, prefix) {
			return true
		}
	}
	return false
}
