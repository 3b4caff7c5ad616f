package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/ohya-backend/api/responses"
	pkgerrors "github.com/angelmondragon/ohya-backend/pkg/errors"
	"github.com/angelmondragon/ohya-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/ohya-backend/pkg/redis"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	maxIdempotencyKeyLen  = 128
	defaultIdempotencyTTL = 24 * time.Hour
	// buffered bodies are capped per route, JSON writes get this default
	defaultIdempotencyBodyLimit int64 = 1 << 20
	// a reservation left by a crashed request must not block retries for a day
	inFlightTTL = time.Minute
)

type idempotencyRule struct {
	method  string
	pattern []string
	ttl     time.Duration
	maxBody int64
}

func rule(method, pattern string) idempotencyRule {
	return idempotencyRule{
		method:  method,
		pattern: splitPath(pattern),
		ttl:     defaultIdempotencyTTL,
		maxBody: defaultIdempotencyBodyLimit,
	}
}

// IdempotencyOption adjusts the route rules of one middleware instance.
type IdempotencyOption func(rules []idempotencyRule)

// WithBodyLimit raises or lowers the buffered body cap for a route, such as
// order creation where the body carries an uploaded proof.
func WithBodyLimit(method, pattern string, limit int64) IdempotencyOption {
	segments := splitPath(pattern)
	return func(rules []idempotencyRule) {
		for i := range rules {
			if rules[i].method == method && slices.Equal(rules[i].pattern, segments) {
				rules[i].maxBody = limit
			}
		}
	}
}

// "*" matches exactly one path segment.
var idempotencyRules = []idempotencyRule{
	rule(http.MethodPost, "/api/v1/auth/register"),
	rule(http.MethodPut, "/api/v1/cart"),
	rule(http.MethodPost, "/api/v1/orders"),
	rule(http.MethodPost, "/api/admin/v1/products"),
	rule(http.MethodPost, "/api/admin/v1/products/*/variants"),
	rule(http.MethodPut, "/api/admin/v1/orders/*/status"),
}

type recordState string

const (
	stateInFlight  recordState = "in_flight"
	stateCompleted recordState = "completed"
)

type idempotencyRecord struct {
	State       recordState `json:"state"`
	RequestHash string      `json:"request_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        string      `json:"body,omitempty"`
}

// Idempotency replays the stored response when a client repeats a write with
// the same Idempotency-Key. The key is optional. It is scoped to the caller,
// method and path, and bound to a hash of the request body. A concurrent
// duplicate gets a conflict while the first request is still running.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger, opts ...IdempotencyOption) func(http.Handler) http.Handler {
	rules := slices.Clone(idempotencyRules)
	for _, opt := range opts {
		opt(rules)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			matched, ok := matchRule(rules, r.Method, requestPath(r))
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, matched.maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
						WithDetails(map[string]any{"limitBytes": tooLarge.Limit}))
					return
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := fingerprint(r, body)
			key := store.IdempotencyKey(buildScope(r), clientKey)

			reserved, err := reserve(ctx, store, key, requestHash)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replay(ctx, logg, w, store, key, requestHash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			completed := false
			defer func() {
				if !completed {
					release(ctx, logg, store, key)
				}
			}()
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}

			record := idempotencyRecord{
				State:       stateCompleted,
				RequestHash: requestHash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			}
			if err := persist(ctx, store, key, record, matched.ttl); err != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
				return
			}
			completed = true
		})
	}
}

func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, requestHash string) (bool, error) {
	payload, err := json.Marshal(idempotencyRecord{State: stateInFlight, RequestHash: requestHash})
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, string(payload), inFlightTTL)
}

// persist swaps the reservation for the final record.
func persist(ctx context.Context, store pkgredis.IdempotencyStore, key string, record idempotencyRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload), ttl)
}

func release(ctx context.Context, logg *logger.Logger, store pkgredis.IdempotencyStore, key string) {
	if err := store.Del(context.WithoutCancel(ctx), key); err != nil {
		logg.Error(ctx, "idempotency.release_failed", err)
	}
}

func replay(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, store pkgredis.IdempotencyStore, key, requestHash string) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// reservation expired or was released between SetNX and Get
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotent request is being retried, try again"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}

	switch {
	case record.RequestHash != requestHash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != stateCompleted:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.Status)
		if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
			_, _ = w.Write(decoded)
		}
	}
}

func buildScope(r *http.Request) string {
	return strings.Join([]string{
		strconv.FormatInt(ActorFromContext(r.Context()).UserID, 10),
		r.Method,
		requestPath(r),
	}, "|")
}

// fingerprint covers the content type too, so a multipart order and a JSON
// body with identical bytes never collide.
func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Header.Get("Content-Type")))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// requestPath is matched instead of the chi route pattern: middleware mounted
// on a subrouter runs before the full pattern is resolved.
func requestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == "" {
		return "/"
	}
	return path
}

func matchRule(rules []idempotencyRule, method, path string) (idempotencyRule, bool) {
	segments := splitPath(path)
	for _, rule := range rules {
		if rule.method == method && matchSegments(rule.pattern, segments) {
			return rule, true
		}
	}
	return idempotencyRule{}, false
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func matchSegments(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if p != segments[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
