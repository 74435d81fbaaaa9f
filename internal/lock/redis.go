package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token, so
// an expired lock reacquired by someone else is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`

// RedisLock is a Redis-backed InstanceLock using SET NX with a TTL.
// Use it when multiple replicas mutate the same instances.
type RedisLock struct {
	client redis.Cmdable
	logger *zap.Logger
}

// NewRedisLock creates a Redis-backed lock set.
func NewRedisLock(client redis.Cmdable, logger *zap.Logger) *RedisLock {
	return &RedisLock{client: client, logger: logger}
}

func (r *RedisLock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if _, ok := ctx.Value(lockToken(key)).(string); ok {
		return fn(ctx)
	}

	value := randomToken()

	acquired, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return err
	}
	if !acquired {
		return ErrLockHeld
	}

	defer r.release(key, value)
	return fn(context.WithValue(ctx, lockToken(key), value))
}

func (r *RedisLock) release(key, value string) {
	// The caller's context may already be cancelled; the release must
	// still go through.
	reply, err := r.client.Eval(context.Background(), releaseScript, []string{key}, value).Result()
	if err != nil {
		r.logger.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		return
	}
	if n, ok := reply.(int64); !ok || n != 1 {
		r.logger.Warn("lock already expired at release", zap.String("key", key))
	}
}

// Ping verifies Redis connectivity. Satisfies the readiness checker.
func (r *RedisLock) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
