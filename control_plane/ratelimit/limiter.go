// Package ratelimit implements the distributed token-bucket rate
// limiter: an atomic INCR+EXPIRE script against Redis, failing open when
// Redis is unreachable, with an in-process golang.org/x/time/rate bucket
// covering the degraded path.
package ratelimit

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/nexusvanguard/control-plane/control_plane/observability"
)

// incrExpireScript atomically increments the counter and sets its expiry
// only on first creation.
const incrExpireScript = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return current
`

// BypassPaths never count against a bucket; every path under /health and
// all OPTIONS preflights bypass too.
var BypassPaths = map[string]bool{
	"/healthz":       true,
	"/readyz":        true,
	"/":              true,
	"/favicon.ico":   true,
	"/manifest.json": true,
}

func IsBypassed(path, method string) bool {
	if method == http.MethodOptions {
		return true
	}
	return BypassPaths[path] || strings.HasPrefix(path, "/health")
}

func IsAdminRoute(path string) bool {
	return strings.HasPrefix(path, "/vanguard/admin")
}

type Bucket string

const (
	BucketDefault Bucket = "default"
	BucketAdmin   Bucket = "admin"
)

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Window    time.Duration
	Degraded  bool
}

// Limiter is the distributed limiter; Redis may be nil, in which case every
// check runs through the in-process fallback in fail-open mode.
type Limiter struct {
	redis *redis.Client

	scriptSHA string
	sha       sync.Mutex

	defaultLimit  int
	defaultWindow time.Duration
	adminLimit    int
	adminWindow   time.Duration

	fallbackMu sync.Mutex
	fallback   map[string]*rate.Limiter
}

func New(client *redis.Client, defaultLimit, adminLimit int, defaultWindow, adminWindow time.Duration) *Limiter {
	return &Limiter{
		redis:         client,
		defaultLimit:  defaultLimit,
		defaultWindow: defaultWindow,
		adminLimit:    adminLimit,
		adminWindow:   adminWindow,
		fallback:      make(map[string]*rate.Limiter),
	}
}

// ClientIP resolves the caller's IP respecting X-Forwarded-For's first
// hop.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := splitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func splitHostPort(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "", nil
	}
	return addr[:idx], addr[idx+1:], nil
}

// Check runs the atomic INCR+EXPIRE script against Redis. On any Redis
// error it fails open (allowed=true, degraded=true) rather than blocking
// traffic.
func (l *Limiter) Check(ctx context.Context, clientIP string, bucket Bucket) Decision {
	limit, window := l.limits(bucket)
	if l.redis == nil {
		return l.checkFallback(clientIP, bucket, limit, window)
	}

	key := "rl:" + clientIP + ":" + string(bucket)
	count, err := l.evalIncrExpire(ctx, key, window)
	if err != nil {
		observability.RateLimitDecisions.WithLabelValues(string(bucket), "degraded").Inc()
		return Decision{Allowed: true, Limit: limit, Remaining: limit, Window: window, Degraded: true}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	allowed := int(count) <= limit
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	observability.RateLimitDecisions.WithLabelValues(string(bucket), outcome).Inc()
	return Decision{Allowed: allowed, Limit: limit, Remaining: remaining, Window: window}
}

func (l *Limiter) evalIncrExpire(ctx context.Context, key string, window time.Duration) (int64, error) {
	l.sha.Lock()
	sha := l.scriptSHA
	l.sha.Unlock()

	windowSeconds := int(window.Seconds())
	var result *redis.Cmd
	if sha != "" {
		result = l.redis.EvalSha(ctx, sha, []string{key}, 1, windowSeconds)
		if err := result.Err(); err == nil {
			return result.Int64()
		}
		// SHA missing (script flushed) — reload below.
	}

	loaded, err := l.redis.ScriptLoad(ctx, incrExpireScript).Result()
	if err != nil {
		return 0, err
	}
	l.sha.Lock()
	l.scriptSHA = loaded
	l.sha.Unlock()

	result = l.redis.EvalSha(ctx, loaded, []string{key}, 1, windowSeconds)
	if err := result.Err(); err != nil {
		return 0, err
	}
	return result.Int64()
}

// checkFallback uses an in-process token bucket per (ip, bucket) key
// when Redis is unavailable at construction time.
func (l *Limiter) checkFallback(clientIP string, bucket Bucket, limit int, window time.Duration) Decision {
	key := clientIP + ":" + string(bucket)
	l.fallbackMu.Lock()
	lim, ok := l.fallback[key]
	if !ok {
		perSecond := float64(limit) / window.Seconds()
		lim = rate.NewLimiter(rate.Limit(perSecond), limit)
		l.fallback[key] = lim
	}
	l.fallbackMu.Unlock()

	// Fail open: always allow while Redis is down. The local bucket is
	// still ticked, but the reported Remaining is the full limit, not the
	// local bucket's state.
	lim.Allow()
	observability.RateLimitDecisions.WithLabelValues(string(bucket), "degraded").Inc()
	return Decision{Allowed: true, Limit: limit, Remaining: limit, Window: window, Degraded: true}
}

func (l *Limiter) limits(bucket Bucket) (int, time.Duration) {
	if bucket == BucketAdmin {
		return l.adminLimit, l.adminWindow
	}
	return l.defaultLimit, l.defaultWindow
}
