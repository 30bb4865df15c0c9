package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketRefills(t *testing.T) {
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(1, 2)
	tb.now = func() time.Time { return clock }
	tb.lastSweep = clock
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := tb.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, ok, "burst call %d", i)
	}
	ok, retry, _ := tb.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, retry)

	ok, _, _ = tb.Allow(ctx, "10.0.0.2")
	assert.True(t, ok, "each caller has its own bucket")

	clock = clock.Add(time.Second)
	ok, _, _ = tb.Allow(ctx, "10.0.0.1")
	assert.True(t, ok, "one token back after a second")
}

func TestTokenBucketForgetsIdleCallers(t *testing.T) {
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(1, 1)
	tb.now = func() time.Time { return clock }
	tb.lastSweep = clock

	_, _, _ = tb.Allow(context.Background(), "10.0.0.1")
	clock = clock.Add(idleBucketTTL + time.Minute)
	_, _, _ = tb.Allow(context.Background(), "10.0.0.2")
	assert.Equal(t, 1, tb.tracked())
}

func TestRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := time.Date(2025, 3, 1, 9, 0, 0, 250*int(time.Millisecond), time.UTC)
	rw := NewRedisWindow(client, 2, time.Second)
	rw.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := rw.Allow(ctx, "203.0.113.9")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, retry, err := rw.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 750*time.Millisecond, retry)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], redisKeyPrefix+"203.0.113.9:")
	assert.Equal(t, 2*time.Second, mr.TTL(keys[0]))

	clock = clock.Add(time.Second)
	ok, _, err = rw.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, ok, "next window starts fresh")
}

func TestRedisWindowFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	ok, _, err := NewRedisWindow(client, 1, time.Second).Allow(context.Background(), "203.0.113.9")
	assert.True(t, ok)
	assert.Error(t, err)
}

type refusingLimiter struct {
	retry time.Duration
	err   error
	keys  []string
}

func (l *refusingLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return true, 0, l.err
	}
	return false, l.retry, nil
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	t.Run("refused", func(t *testing.T) {
		limiter := &refusingLimiter{retry: 1500 * time.Millisecond}
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		RateLimit(limiter, nil)(ok).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
		assert.Equal(t, []string{"192.0.2.7"}, limiter.keys)
	})

	t.Run("real ip header wins", func(t *testing.T) {
		limiter := &refusingLimiter{}
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		req.Header.Set("X-Real-Ip", "198.51.100.4")
		rec := httptest.NewRecorder()
		RateLimit(limiter, nil)(ok).ServeHTTP(rec, req)

		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Equal(t, []string{"198.51.100.4"}, limiter.keys)
	})

	t.Run("limiter error lets request through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RateLimit(&refusingLimiter{err: errors.New("redis down")}, nil)(ok).
			ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("nil limiter disables", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			RateLimit(nil, nil)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
	})
}
