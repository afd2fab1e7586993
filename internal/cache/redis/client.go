// Package redis implements the domain cache interfaces using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds connectivity checks so a dead redis fails fast instead
// of hanging the caller.
const pingTimeout = 5 * time.Second

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

func (c ClientConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:       c.Addr,
		Password:   c.Password,
		DB:         c.DB,
		PoolSize:   c.PoolSize,
		MaxRetries: c.MaxRetries,
	}
	if c.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Client is the shared connection every cache component in this package
// hangs off. One Client per process; the caches, the signal bus, the rate
// limiter and the lock manager all borrow its pool.
type Client struct {
	rdb *redis.Client
}

// New dials redis and verifies the connection with a ping before handing
// the Client back.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(cfg.options())

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping reports whether redis is still reachable. The health endpoint calls
// this on every check.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for the components in this
// package that talk to the driver directly.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
