package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisOptions holds the Redis connection settings
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisBackend keeps every payload under its key with no expiry.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects and verifies the server answers.
func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return NewRedisBackendFromClient(client), nil
}

func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Read(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (r *RedisBackend) Write(ctx context.Context, key string, payload []byte) error {
	return r.client.Set(ctx, key, string(payload), 0).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
