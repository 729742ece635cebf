// Package redis builds the shared go-redis client used for guest carts and idempotency keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/matica-life/storefront/internal/platform/config"
)

const defaultDialTimeout = 5 * time.Second

// Option customises client construction.
type Option func(*goredis.Options)

// WithDialTimeout overrides the connection timeout.
func WithDialTimeout(timeout time.Duration) Option {
	return func(o *goredis.Options) {
		if timeout > 0 {
			o.DialTimeout = timeout
		}
	}
}

// WithPoolSize overrides the connection pool size.
func WithPoolSize(size int) Option {
	return func(o *goredis.Options) {
		if size > 0 {
			o.PoolSize = size
		}
	}
}

// New constructs a client from cfg and verifies connectivity with PING.
func New(ctx context.Context, cfg config.RedisConfig, opts ...Option) (*goredis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis: address is required")
	}
	options := &goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	client := goredis.NewClient(options)
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Pinger is the subset of the client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

// Ping checks connectivity.
func Ping(ctx context.Context, client Pinger) error {
	if client == nil {
		return errors.New("redis: client is nil")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// IsNil reports whether err is the redis "key does not exist" reply.
func IsNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}
