package security_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/angelmondragon/ohya-backend/pkg/config"
	"github.com/angelmondragon/ohya-backend/pkg/security"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	cfg := config.PasswordConfig{
		ArgonMemoryKB:    32768,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}

	hash, err := security.HashPassword("very-secure-password", cfg)
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "" {
		t.Fatal("HashPassword returned empty string")
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword failed for the correct password")
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	if _, err := security.VerifyPassword("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestVerifyPasswordAcceptsLegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := security.VerifyPassword("admin123", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected bcrypt hash to verify, ok=%v err=%v", ok, err)
	}
	ok, err = security.VerifyPassword("admin124", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
	if !security.NeedsRehash(string(legacy)) {
		t.Fatal("bcrypt hashes should be upgraded")
	}
}

func TestNeedsRehashArgon(t *testing.T) {
	hash, err := security.HashPassword("pw", config.PasswordConfig{ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 8, ArgonKeyLen: 16})
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if security.NeedsRehash(hash) {
		t.Fatal("argon2id hashes do not need a rehash")
	}
}

func TestVerifyPasswordRejectsOutOfBoundsParams(t *testing.T) {
	hash, err := security.HashPassword("pw", config.PasswordConfig{ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 8, ArgonKeyLen: 16})
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	tampered := strings.Replace(hash, "m=8,", "m=99999999,", 1)
	if _, err := security.VerifyPassword("pw", tampered); !errors.Is(err, security.ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestNeedsRehashOldArgonVersion(t *testing.T) {
	hash, err := security.HashPassword("pw", config.PasswordConfig{ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 8, ArgonKeyLen: 16})
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	old := strings.Replace(hash, "$v=19$", "$v=16$", 1)
	if !security.NeedsRehash(old) {
		t.Fatal("hashes from an older argon2 version should be upgraded")
	}
	if !security.NeedsRehash("garbage") {
		t.Fatal("unparseable hashes should be replaced")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := security.HashPassword("", config.PasswordConfig{}); !errors.Is(err, security.ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}
