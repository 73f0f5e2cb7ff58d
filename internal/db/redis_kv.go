package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOptions holds connection parameters for RedisKV.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisKV is a key/value backend on Redis. Keys carry no expiry; staleness
// is judged by the entry's own timestamp.
type RedisKV struct {
	rdb   redis.Cmdable
	close func() error
}

// NewRedisKV connects and pings Redis.
func NewRedisKV(ctx context.Context, opts RedisOptions) (*RedisKV, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisKV{rdb: rdb, close: rdb.Close}, nil
}

// Get returns the stored value; a missing key is a miss, not an error.
func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value without expiry.
func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (r *RedisKV) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}
