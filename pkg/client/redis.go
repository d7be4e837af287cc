package client

import (
	"context"
	"fmt"
	"slotkeeper/pkg/logger"
	"time"

	"github.com/redis/go-redis/v9"
)

func (c *Client) SetRedis(ctx context.Context, log *logger.Logger, addr, password string, db int) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to ping Redis at %s: %w", addr, err)
	}

	log.Info("Successfully connected to Redis", "addr", addr, "db", db)
	c.Redis = rdb
	return nil
}
