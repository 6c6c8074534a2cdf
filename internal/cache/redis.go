package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sarthi/gateway/internal/config"
)

const pingAttempts = 3

// NewRedisClient connects to the redis instance holding cache generations,
// session slots and the lifecycle stream. The ping is retried so the gateway
// can start alongside a redis container that is still booting.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, clientName string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: clientName,
	})

	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return client, nil
		}
		if attempt < pingAttempts {
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, fmt.Errorf("redis ping: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("redis ping: %w", err)
}
