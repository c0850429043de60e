// Package ratelimit provides best-effort fixed-window request counters keyed
// by client IP. The in-memory limiter is process-local and resets on restart;
// the Redis limiter shares windows across instances.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

type Limiter interface {
	// Allow reports whether one more request from key fits in the current
	// window. Limiters fail open: an unreachable backend never blocks a
	// customer checkout.
	Allow(ctx context.Context, key string) bool
}

type window struct {
	count   int
	resetAt time.Time
}

type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]window
	limit   int
	period  time.Duration
}

func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]window),
		limit:   limit,
		period:  period,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.evictExpired(now)
		l.windows[key] = window{count: 1, resetAt: now.Add(l.period)}
		return true
	}
	if w.count >= l.limit {
		return false
	}
	w.count++
	l.windows[key] = w
	return true
}

// evictExpired runs opportunistically while the lock is held; the map only
// grows with distinct client IPs inside one window.
func (l *MemoryLimiter) evictExpired(now time.Time) {
	for k, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	period time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		period: period,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", l.prefix, key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", redisKey).Msg("rate limit backend unavailable, allowing request")
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.period).Err(); err != nil {
			log.Warn().Err(err).Str("key", redisKey).Msg("failed to set rate limit window expiry")
		}
	}
	return count <= int64(l.limit)
}
