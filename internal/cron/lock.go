package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/pkg/redis"
)

const defaultLockTTL = 30 * time.Second

// Lock coordinates exclusive job runs across cron workers.
type Lock interface {
	// Acquire returns a release token when the named lock was taken.
	Acquire(ctx context.Context, name string) (string, bool, error)
	Release(ctx context.Context, name, token string) error
}

// RedisLock implements Lock using SETNX with a TTL and an owner-checked delete.
type RedisLock struct {
	store redis.LockStore
	ttl   time.Duration
}

func NewRedisLock(store redis.LockStore, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context, name string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.store.LockKey("cron:"+name), token, l.ttl)
	if err != nil {
		return "", false, fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock only while token still owns it.
func (l *RedisLock) Release(ctx context.Context, name, token string) error {
	if token == "" {
		return nil
	}
	if _, err := l.store.ReleaseIfOwner(ctx, l.store.LockKey("cron:"+name), token); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
