// Package redis carries document store changes between server instances over
// Redis pub/sub (github.com/redis/go-redis/v9).
package redis

import (
	"context"
	"fmt"
	"strconv"

	"support_chat_server/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, conf *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Host + ":" + strconv.Itoa(conf.Port),
		Password: conf.Password,
		DB:       conf.Db,
		PoolSize: 20,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
