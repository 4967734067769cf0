// Package redis backs the credential store with a Redis server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/airwatch/internal/credential"
	goredis "github.com/redis/go-redis/v9"
)

// KV implements credential.KV on top of a Redis client.
type KV struct {
	client *goredis.Client
	logger *slog.Logger
}

// NewKV connects to addr. The connection is lazy; use Ping to verify it.
func NewKV(addr, password string, db int, logger *slog.Logger) *KV {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &KV{client: client, logger: logger}
}

func (k *KV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := k.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, credential.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	if err := k.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// CheckReadiness pings the server.
func (k *KV) CheckReadiness(ctx context.Context) error {
	if err := k.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (k *KV) Close() error {
	return k.client.Close()
}
