// Package cache is a thin JSON cache over Redis. Every call is a no-op
// (or a miss) when Redis is not connected, so callers never branch on it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shashiranjanraj/bunkar/config"
)

var RDB *redis.Client

// Connect initialises the Redis client and verifies it with a ping.
func Connect(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr(),
		Password: config.RedisPassword(),
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		RDB = nil
		return fmt.Errorf("cache: redis ping: %w", err)
	}
	RDB = client
	return nil
}

// Use installs an existing client. Tests pass nil to disable caching.
func Use(client *redis.Client) { RDB = client }

// Available reports whether a Redis client is installed.
func Available() bool { return RDB != nil }

// Get unmarshals the value under key into dest. Returns true on a hit.
func Get(ctx context.Context, key string, dest interface{}) bool {
	if RDB == nil {
		return false
	}

	val, err := RDB.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, dest) == nil
}

// Set stores value under key for ttl.
func Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if RDB == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return RDB.Set(ctx, key, data, ttl).Err()
}

// Del removes one or more keys.
func Del(ctx context.Context, keys ...string) error {
	if RDB == nil {
		return nil
	}
	return RDB.Del(ctx, keys...).Err()
}

// Incr atomically increments an integer key and returns the new value.
func Incr(ctx context.Context, key string) (int64, error) {
	if RDB == nil {
		return 0, nil
	}
	return RDB.Incr(ctx, key).Result()
}

// Int returns the integer stored at key, or 0.
func Int(ctx context.Context, key string) int64 {
	if RDB == nil {
		return 0
	}
	n, err := RDB.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return n
}
