package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("pool lock not acquired")
)

// Locker serializes assignments within a pool. Each assignment is recorded
// before the lock is released, and the selector treats recorded assignments
// as conflicts, so overlapping requests are never handed the same member.
type Locker interface {
	WithPoolLock(ctx context.Context, poolID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisPoolLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPoolLocker creates a locker that uses a per pool Redis key
func NewRedisPoolLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisPoolLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisPoolLocker) WithPoolLock(ctx context.Context, poolID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:pool:%s", poolID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire pool lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisPoolLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release pool lock: %w", err)
	}
	return nil
}
