package settlement

import (
	"context"
	"time"

	"examprep-marketplace/pkg/errutil"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serializes work on one key across API replicas. The release func is
// always non-nil when err is nil.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

const lockPollInterval = 50 * time.Millisecond

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	rdb *redis.Client
}

// NewLocker returns a Redis backed locker, or a no-op locker when rdb is nil.
func NewLocker(rdb *redis.Client) Locker {
	if rdb == nil {
		return noopLocker{}
	}
	return &redisLocker{rdb: rdb}
}

// Acquire polls until the lock is free or ctx is done. When Redis itself is
// unreachable the caller proceeds unlocked and relies on the unique index.
func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errutil.Timeout("timed out waiting for settlement lock", ctx.Err())
			}
			zap.L().Warn("settlement lock unavailable, continuing without it", zap.String("key", key), zap.Error(err))
			return func() {}, nil
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, errutil.Timeout("timed out waiting for settlement lock", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *redisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && err != redis.Nil {
		zap.L().Warn("failed to release settlement lock", zap.String("key", key), zap.Error(err))
	}
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
