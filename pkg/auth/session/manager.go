package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/ohya-backend/pkg/config"
	redisclient "github.com/angelmondragon/ohya-backend/pkg/redis"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errAccessIDRequired    = errors.New("access id is required")
)

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
}

// record is stored under ohya:session:access:<jti>. Only a digest of the
// refresh token is kept.
type record struct {
	UserID    int64  `json:"user_id"`
	TokenHash string `json:"token_sha256"`
	IssuedAt  int64  `json:"issued_at"`
}

// Manager pairs each access token id with one refresh token. Refresh rotates
// the pair; logout deletes it, which also revokes the access token.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
	now   func() time.Time
}

// AccessSessionChecker is what the auth middleware needs.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	accessTTL := time.Duration(cfg.ExpirationMinutes) * time.Minute
	if ttl <= accessTTL {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, accessTTL)
	}
	return &Manager{store: client, keyer: client, ttl: ttl, now: time.Now}, nil
}

// Generate mints the refresh token for a freshly issued access token.
func (m *Manager) Generate(ctx context.Context, accessID string, userID int64) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errAccessIDRequired
	}
	if userID <= 0 {
		return "", errors.New("user id is required")
	}
	return m.issue(ctx, accessID, userID)
}

// Rotate exchanges a refresh token for a new access id and refresh token.
// The old pair is deleted before the new one is written so a replayed token
// never yields a second session.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, provided string) (newAccessID, refreshToken string, userID int64, err error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" {
		return "", "", 0, ErrInvalidRefreshToken
	}

	key := m.keyer.AccessSessionKey(oldAccessID)
	current, err := m.get(ctx, key)
	if errors.Is(err, redislib.Nil) {
		return "", "", 0, ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", 0, err
	}
	if subtle.ConstantTimeCompare([]byte(current.TokenHash), []byte(digest(provided))) != 1 {
		return "", "", 0, ErrInvalidRefreshToken
	}

	if err := m.store.Del(ctx, key); err != nil {
		return "", "", 0, fmt.Errorf("revoking previous session: %w", err)
	}

	newAccessID = NewAccessID()
	refreshToken, err = m.issue(ctx, newAccessID, current.UserID)
	if err != nil {
		return "", "", 0, err
	}
	return newAccessID, refreshToken, current.UserID, nil
}

// Revoke ends the session bound to accessID. Unknown ids are not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errAccessIDRequired
	}
	return m.store.Del(ctx, m.keyer.AccessSessionKey(accessID))
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errAccessIDRequired
	}
	_, err := m.get(ctx, m.keyer.AccessSessionKey(accessID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redislib.Nil):
		return false, nil
	default:
		return false, err
	}
}

// NewAccessID returns the value used as both JWT jti and session key suffix.
func NewAccessID() string {
	return uuid.NewString()
}

func (m *Manager) issue(ctx context.Context, accessID string, userID int64) (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	now := time.Now
	if m.now != nil {
		now = m.now
	}
	payload, err := json.Marshal(record{UserID: userID, TokenHash: digest(token), IssuedAt: now().Unix()})
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	if err := m.store.Set(ctx, m.keyer.AccessSessionKey(accessID), string(payload), m.ttl); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return token, nil
}

func (m *Manager) get(ctx context.Context, key string) (record, error) {
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return record{}, fmt.Errorf("decoding session: %w", err)
	}
	return rec, nil
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
