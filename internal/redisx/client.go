package redisx

import (
	"context"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Claim sets key only if absent. It reports whether this caller won the key.
func Claim(ctx context.Context, rdb *redis.Client, key string, val any, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, val, ttl).Result()
}
