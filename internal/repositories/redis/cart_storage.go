// Package redis stores guest carts in Redis with a sliding expiry.
package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/matica-life/storefront/internal/cart"
	"github.com/matica-life/storefront/internal/repositories"
)

const keyPrefix = "storefront:"

// Client is the subset of go-redis used by CartStorage. *goredis.Client satisfies it.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// CartStorage implements cart.Storage. Every Save refreshes the TTL so active guests keep their cart.
type CartStorage struct {
	client Client
	ttl    time.Duration
}

// NewCartStorage constructs a Redis cart storage. A non-positive ttl keeps keys forever.
func NewCartStorage(client Client, ttl time.Duration) (*CartStorage, error) {
	if client == nil {
		return nil, errors.New("redis cart storage: client is required")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &CartStorage{client: client, ttl: ttl}, nil
}

// Load implements cart.Storage.
func (s *CartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.client.Get(ctx, redisKey(key)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, cart.ErrNotFound
	case err != nil:
		return nil, wrap("carts.load", err)
	}
	return payload, nil
}

// Save implements cart.Storage.
func (s *CartStorage) Save(ctx context.Context, key string, payload []byte) error {
	if err := s.client.Set(ctx, redisKey(key), payload, s.ttl).Err(); err != nil {
		return wrap("carts.save", err)
	}
	return nil
}

// Delete implements cart.Deleter.
func (s *CartStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return wrap("carts.delete", err)
	}
	return nil
}

func redisKey(key string) string {
	return keyPrefix + strings.TrimSpace(key)
}

func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return repositories.NewStorageError(op, repositories.StorageErrorUnavailable, err)
}

var (
	_ cart.Storage = (*CartStorage)(nil)
	_ cart.Deleter = (*CartStorage)(nil)
	_ Client       = (*goredis.Client)(nil)
)
