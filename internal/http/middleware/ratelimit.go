package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/travel-enquiry-bot/pkg/logging"
)

// Limiter decides whether a caller identified by key may proceed. When it
// refuses, retry says how long the caller should back off.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retry time.Duration, err error)
}

const (
	idleBucketTTL  = 10 * time.Minute
	sweepInterval  = 5 * time.Minute
	redisKeyPrefix = "ratelimit:webhook:"
)

// TokenBucket is a per-process Limiter refilling rate tokens per second up
// to burst. Used when Redis is not configured.
type TokenBucket struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	callers   map[string]*tokens
	now       func() time.Time
	lastSweep time.Time
}

type tokens struct {
	left float64
	seen time.Time
}

func NewTokenBucket(rate float64, burst int) *TokenBucket {
	now := time.Now()
	return &TokenBucket{
		rate:      rate,
		burst:     float64(max(burst, 1)),
		callers:   make(map[string]*tokens),
		now:       time.Now,
		lastSweep: now,
	}
}

func (tb *TokenBucket) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if now.Sub(tb.lastSweep) >= sweepInterval {
		tb.evictIdle(now)
	}

	t, ok := tb.callers[key]
	if !ok {
		t = &tokens{left: tb.burst, seen: now}
		tb.callers[key] = t
	}
	t.left = math.Min(tb.burst, t.left+now.Sub(t.seen).Seconds()*tb.rate)
	t.seen = now

	if t.left >= 1 {
		t.left--
		return true, 0, nil
	}
	wait := time.Duration((1 - t.left) / tb.rate * float64(time.Second))
	return false, wait, nil
}

func (tb *TokenBucket) evictIdle(now time.Time) {
	tb.lastSweep = now
	for key, t := range tb.callers {
		if now.Sub(t.seen) > idleBucketTTL {
			delete(tb.callers, key)
		}
	}
}

func (tb *TokenBucket) tracked() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.callers)
}

// RedisWindow is a fixed-window Limiter shared by every replica. Each key
// may make limit calls per window.
type RedisWindow struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisWindow(client *redis.Client, limit int, window time.Duration) *RedisWindow {
	if client == nil {
		panic("middleware: redis client required")
	}
	if window <= 0 {
		window = time.Second
	}
	return &RedisWindow{client: client, limit: int64(max(limit, 1)), window: window, now: time.Now}
}

func (rw *RedisWindow) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := rw.now()
	start := now.Truncate(rw.window)
	slot := fmt.Sprintf("%s%s:%d", redisKeyPrefix, key, start.UnixMilli())

	pipe := rw.client.TxPipeline()
	count := pipe.Incr(ctx, slot)
	pipe.PExpire(ctx, slot, 2*rw.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("middleware: rate window: %w", err)
	}
	if count.Val() <= rw.limit {
		return true, 0, nil
	}
	return false, start.Add(rw.window).Sub(now), nil
}

// RateLimit rejects callers the limiter refuses with 429. A nil limiter
// disables limiting. Limiter errors are logged and the request goes through.
func RateLimit(limiter Limiter, logger *logging.Logger) func(http.Handler) http.Handler {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			ok, retry, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.Warn("rate limiter unavailable", "ip", ip, "error", err)
			}
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retry)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}

// clientIP reads X-Real-Ip, which chi's RealIP middleware fills in upstream.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
