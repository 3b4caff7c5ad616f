package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/ohya-backend/pkg/config"
)

// ArgonParams are the cost settings embedded in every hash string.
type ArgonParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// upper bounds also apply to decoded hashes so a tampered row cannot make
// login allocate unbounded memory
const (
	minMemoryKB = 8
	maxMemoryKB = 512 * 1024
	maxTime     = 10
)

var b64 = base64.RawStdEncoding

func (p ArgonParams) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
}

type argonHash struct {
	version int
	params  ArgonParams
	salt    []byte
	key     []byte
}

func newArgonHash(password string, params ArgonParams) (argonHash, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return argonHash{}, fmt.Errorf("generate salt: %w", err)
	}
	return argonHash{
		version: argon2.Version,
		params:  params,
		salt:    salt,
		key:     params.derive(password, salt),
	}, nil
}

// String renders $argon2id$v=19$m=<kb>,t=<iter>,p=<threads>$<salt>$<key>.
func (h argonHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.version, h.params.Memory, h.params.Time, h.params.Parallelism,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func parseArgonHash(encoded string) (argonHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argonHash{}, ErrInvalidHash
	}

	var h argonHash
	if _, err := fmt.Sscanf(parts[2], "v=%d", &h.version); err != nil {
		return argonHash{}, ErrInvalidHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.params.Memory, &h.params.Time, &h.params.Parallelism); err != nil {
		return argonHash{}, ErrInvalidHash
	}
	if h.params.Memory < minMemoryKB || h.params.Memory > maxMemoryKB ||
		h.params.Time == 0 || h.params.Time > maxTime || h.params.Parallelism == 0 {
		return argonHash{}, ErrInvalidHash
	}

	var err error
	if h.salt, err = b64.DecodeString(parts[4]); err != nil || len(h.salt) == 0 {
		return argonHash{}, ErrInvalidHash
	}
	if h.key, err = b64.DecodeString(parts[5]); err != nil || len(h.key) == 0 {
		return argonHash{}, ErrInvalidHash
	}
	h.params.SaltLen = uint32(len(h.salt))
	h.params.KeyLen = uint32(len(h.key))
	return h, nil
}

func paramsFromConfig(cfg config.PasswordConfig) ArgonParams {
	return ArgonParams{
		Memory:      uint32(clamp(cfg.ArgonMemoryKB, minMemoryKB, maxMemoryKB)),
		Time:        uint32(clamp(cfg.ArgonTime, 1, maxTime)),
		Parallelism: uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		SaltLen:     uint32(clamp(cfg.ArgonSaltLen, 8, 64)),
		KeyLen:      uint32(clamp(cfg.ArgonKeyLen, 16, 64)),
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
