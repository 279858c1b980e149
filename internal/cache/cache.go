package cache

import (
	"context"
	"time"
)

// Cache stores JSON documents with a time to live. Keys are relative to the
// cache's namespace.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

func join(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}
