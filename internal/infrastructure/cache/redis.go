// Package cache connects the redis instance backing idempotency replay and
// the price mirror.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// OpenRedis dials, verifies the connection with a ping bounded by
// dialTimeout, and returns the client. Redis is optional infrastructure, so
// callers fail startup on error rather than degrading silently.
func OpenRedis(addr string, db int, dialTimeout time.Duration) (*redis.Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	r := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: dialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}
