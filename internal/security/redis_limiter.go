package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript starts a window on the first hit, refuses once the count reaches
// the max and otherwise increments. INCR keeps the key TTL.
var hitScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[1])
  return 0
end
if tonumber(current) >= tonumber(ARGV[2]) then
  return 1
end
redis.call('INCR', KEYS[1])
return 0
`)

// RedisLimiter shares counters between API processes. Windows end when the
// key expires, so Purge has nothing to do.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	max    int
	prefix string
}

func NewRedisLimiter(client *redis.Client, window time.Duration, max int) *RedisLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if max <= 0 {
		max = DefaultRateLimitMax
	}
	return &RedisLimiter{client: client, window: window, max: max, prefix: "ratelimit:"}
}

func (l *RedisLimiter) Hit(ctx context.Context, key string) (bool, error) {
	limited, err := hitScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds(), l.max).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit hit: %w", err)
	}
	return limited == 1, nil
}

func (l *RedisLimiter) Purge(context.Context) (int, error) {
	return 0, nil
}
