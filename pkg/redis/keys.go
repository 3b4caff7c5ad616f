package redis

import (
	"strconv"
	"strings"
)

const keyNamespace = "ohya"

const (
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	sessionPrefix     = "session"
	cartPrefix        = "cart"
)

// IdempotencyKey is ohya:idempotency:<scope>:<id>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyPrefix, scope, id)
}

// RateLimitKey is ohya:rate_limit:<scope>.
func (c *Client) RateLimitKey(scope string) string {
	return buildKey(rateLimitPrefix, scope)
}

// CartKey is ohya:cart:<userId>.
func (c *Client) CartKey(userID int64) string {
	return buildKey(cartPrefix, strconv.FormatInt(userID, 10))
}

// AccessSessionKey is ohya:session:access:<jti>.
func (c *Client) AccessSessionKey(accessID string) string {
	return buildKey(sessionPrefix, "access", accessID)
}

func buildKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
