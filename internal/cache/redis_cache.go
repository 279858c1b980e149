package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps documents under "<namespace>:<key>".
type RedisCache struct {
	rdb *redis.Client
	ns  string
}

func NewRedisCache(rdb *redis.Client, namespace string) *RedisCache {
	return &RedisCache{rdb: rdb, ns: namespace}
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	full := join(c.ns, key)
	b, err := c.rdb.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		// unreadable document counts as a miss
		_ = c.rdb.Del(ctx, full).Err()
		return false, nil
	}
	return true, nil
}

// SetJSON writes val. A non-positive ttl keeps the key without expiry.
func (c *RedisCache) SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, join(c.ns, key), b, ttl).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = join(c.ns, k)
	}
	return c.rdb.Del(ctx, full...).Err()
}
