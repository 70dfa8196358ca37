package triplock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a distributed lock built on SET NX PX. Waiters inside one process
// queue on a Local lock first so only one of them polls Redis per key.
//
// The TTL bounds how long a crashed holder blocks the trip; it must exceed
// the longest validate-and-commit.
type Redis struct {
	client *redis.Client
	local  *Local
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

// NewRedis returns a Redis-backed Locker.
func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{
		client: client,
		local:  NewLocal(),
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		logger: logger,
	}
}

// Lock implements Locker.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := r.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	rkey := redisKey(key)
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, rkey, token, r.ttl).Result()
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("triplock.Redis.Lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, fmt.Errorf("triplock.Redis.Lock: %w", ctx.Err())
		case <-time.After(r.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			defer unlockLocal()
			// Release even when the caller's context is gone.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{rkey}, token).Err(); err != nil {
				r.logger.Warn("trip lock release failed", "key", key, "error", err)
			}
		})
	}, nil
}

func redisKey(key string) string {
	return "dreamtrip:lock:" + key
}
