package utils

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// FlagLoader fetches the authoritative value of a named boolean flag (e.g.
// the active waiver-agreement state) from persistent storage.
type FlagLoader func(ctx context.Context, name string) (bool, error)

// FlagCache is a read-through cache for is-active style flags. Mutating
// operations must call Invalidate explicitly; entries otherwise live for TTL.
type FlagCache struct {
	Client *redis.Client
	TTL    time.Duration
	Load   FlagLoader
}

const flagKeyPrefix = "flag:"

// Get returns the cached flag value, loading and caching it on a miss.
func (f *FlagCache) Get(ctx context.Context, name string) (bool, error) {
	val, err := f.Client.Get(ctx, flagKeyPrefix+name).Result()
	if err == nil {
		b, perr := strconv.ParseBool(val)
		if perr == nil {
			return b, nil
		}
	} else if err != redis.Nil {
		return false, err
	}

	b, err := f.Load(ctx, name)
	if err != nil {
		return false, err
	}
	if err := f.Client.Set(ctx, flagKeyPrefix+name, strconv.FormatBool(b), f.TTL).Err(); err != nil {
		return b, err
	}
	return b, nil
}

// Invalidate drops the cached value for a flag after its source changes.
func (f *FlagCache) Invalidate(ctx context.Context, name string) error {
	return f.Client.Del(ctx, flagKeyPrefix+name).Err()
}
