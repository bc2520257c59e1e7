package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/redisx"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisDeduper remembers processed event ids for redisx.TTLDedup.
type RedisDeduper struct {
	RDB     redis.Cmdable
	Service string
}

func (d *RedisDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return redisx.Claim(ctx, d.RDB, fmt.Sprintf(redisx.KeyDedup, d.Service, eventID), redisx.TTLDedup)
}

// RedisLocker hands out short leases so only one auditor replica sweeps a
// given day.
type RedisLocker struct {
	Client *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{Client: redislock.New(rdb)}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lock, err := l.Client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return lock.Release, true, nil
}
