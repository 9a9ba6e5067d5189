package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPRateLimiter caps how many codes may be requested per email per window.
type OTPRateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// ─── REDIS ────────────────────────────────────────────────────────────────────

const redisOTPAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisOTPRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

// NewRedisOTPRateLimiter counts requests in Redis so the cap holds across
// replicas. Redis errors fail open.
func NewRedisOTPRateLimiter(client *redis.Client, window time.Duration, max int) OTPRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	if client == nil {
		return &redisOTPRateLimiter{}
	}
	return &redisOTPRateLimiter{client: client, window: window, max: max, prefix: "bornify:otp:rl:"}
}

func (l *redisOTPRateLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisOTPAllowScript, []string{l.prefix + normalized}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}

// ─── IN-MEMORY ────────────────────────────────────────────────────────────────

type memoryWindow struct {
	count   int
	resetAt time.Time
}

type memoryOTPRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	window  time.Duration
	max     int
	now     func() time.Time
}

// NewMemoryOTPRateLimiter is the single-process fallback used when no Redis
// address is configured.
func NewMemoryOTPRateLimiter(window time.Duration, max int) OTPRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &memoryOTPRateLimiter{
		windows: make(map[string]*memoryWindow),
		window:  window,
		max:     max,
		now:     time.Now,
	}
}

func (l *memoryOTPRateLimiter) Allow(_ context.Context, key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[normalized]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(l.window)}
		l.windows[normalized] = w
		l.sweep(now)
	}
	w.count++
	return w.count <= l.max
}

// sweep drops expired windows so the map does not grow without bound.
func (l *memoryOTPRateLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
