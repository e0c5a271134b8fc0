package utils

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// AdvisoryLock serializes critical sections across processes using a Redis
// SetNX key. Callers must release with the token returned by Acquire so a
// lock held by another owner is never deleted.
type AdvisoryLock struct {
	Client *redis.Client
	TTL    time.Duration
}

// Acquire attempts to take the named lock. It returns the owner token and
// whether the lock was obtained.
func (l *AdvisoryLock) Acquire(ctx context.Context, name string) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.Client.SetNX(ctx, "lock:"+name, token, l.TTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release frees the named lock if it is still owned by token.
func (l *AdvisoryLock) Release(ctx context.Context, name, token string) error {
	key := "lock:" + name
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == token {
		return l.Client.Del(ctx, key).Err()
	}
	return nil // do not release a lock owned by someone else
}
