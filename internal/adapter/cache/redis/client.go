package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient builds a client sized for blocking stream reads: the read
// timeout stays above the XREADGROUP block so polls are not cut short.
func NewClient(opts Options, block time.Duration) *redis.Client {
	readTimeout := 3 * time.Second
	if block+time.Second > readTimeout {
		readTimeout = block + time.Second
	}
	return redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		ReadTimeout: readTimeout,
	})
}

// Ping fails fast when the server is unreachable at startup.
func Ping(ctx context.Context, c *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
