package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/ohya-backend/api/responses"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
)

const maxRateLimitBody = 64 << 10

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// AuthRateLimitPolicy is a fixed-window limit applied per client IP and per
// submitted email. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{name: name, window: window, ipLimit: ipLimit, emailLimit: emailLimit}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// counter is one dimension evaluated for a request. value is what ends up in
// the redis key: the raw ip, or the sha256 of the normalized email.
type counter struct {
	dimension string
	value     string
	limit     int
}

func (p AuthRateLimitPolicy) scope(c counter) string {
	return c.dimension + ":" + p.name + ":" + c.value
}

// AuthRateLimit throttles credential endpoints. Over-limit callers get a 429
// with Retry-After set to the window length.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			counters, err := policy.counters(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}

			for _, c := range counters {
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.scope(c)), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(c.limit) {
					respondRateLimited(ctx, logg, w, policy, c, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// counters buffers the body when the email dimension is on so the handler
// can still decode it.
func (p AuthRateLimitPolicy) counters(r *http.Request) ([]counter, error) {
	out := make([]counter, 0, 2)
	if p.ipLimit > 0 {
		if ip := clientIP(r); ip != "" {
			out = append(out, counter{dimension: "ip", value: ip, limit: p.ipLimit})
		}
	}
	if p.emailLimit > 0 && r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRateLimitBody))
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if email := normalizeEmail(extractEmail(body)); email != "" {
			out = append(out, counter{dimension: "email", value: hashValue(email), limit: p.emailLimit})
		}
	}
	return out, nil
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, c counter, count int64) {
	retryAfter := int(policy.window.Seconds())
	fields := map[string]any{
		"policy":         policy.name,
		"scope":          c.dimension,
		"attempts":       count,
		"limit":          c.limit,
		"window_seconds": retryAfter,
	}
	if c.dimension == "ip" {
		fields["ip"] = c.value
	} else {
		fields["email_hash"] = c.value
	}
	logg.Warn(logg.WithFields(ctx, fields), "auth.rate_limit.blocked")

	err := pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later").
		WithDetails(map[string]any{responses.RetryAfterDetail: retryAfter})
	responses.WriteError(ctx, nil, w, err)
}

// clientIP trusts the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return ""
	}
	return body.Email
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
