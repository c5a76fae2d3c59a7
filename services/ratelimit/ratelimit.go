// Package ratelimit limits requests per key (client IP) over one minute windows.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/trezcool/learninghub/core"
)

var nowFunc = time.Now // mockable

// Limiter reports whether one more request for key fits the quota.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisLimiter is a fixed window counter shared by every API instance.
// While Redis is unreachable, each instance limits on its own with a MemoryLimiter.
type RedisLimiter struct {
	client   redis.UniversalClient
	prefix   string
	limit    int
	window   time.Duration
	fallback *MemoryLimiter
	logger   core.Logger
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration, logger core.Logger) (*RedisLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	return &RedisLimiter{
		client:   client,
		prefix:   prefix + ":ratelimit",
		limit:    limit,
		window:   window,
		fallback: NewMemoryLimiter(limit, window),
		logger:   logger,
	}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	windowMs := l.window.Milliseconds()
	slot := nowFunc().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		l.logger.Warn(fmt.Sprintf("rate limiter: %v, limiting in memory", err))
		return l.fallback.Allow(ctx, key)
	}
	return count <= int64(l.limit)
}

// MemoryLimiter keeps one token bucket per key: `limit` requests per window, burst `limit`.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
	}
}

func (l *MemoryLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	return l.get(normalizeKey(key)).AllowN(nowFunc(), 1)
}

// Cleanup drops the buckets that are full again, i.e. idle for a whole window.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := nowFunc()
	for key, limiter := range l.limiters {
		if limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *MemoryLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// New returns a Redis limiter when client is set, a memory limiter otherwise.
func New(client *redis.Client, prefix string, perMinute int, logger core.Logger) (Limiter, error) {
	if perMinute <= 0 {
		perMinute = 20
	}
	if client == nil {
		return NewMemoryLimiter(perMinute, time.Minute), nil
	}
	return NewRedisLimiter(client, prefix, perMinute, time.Minute, logger)
}
