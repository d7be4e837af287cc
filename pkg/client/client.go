package client

import (
	"context"
	"slotkeeper/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Client holds the process-wide connections. Only the ones the configured
// store driver and integrations need are populated.
type Client struct {
	Mongo    *mongo.Client
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) GracefulShutdown(ctx context.Context, log *logger.Logger) {
	if c.Mongo != nil {
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Error("Failed to disconnect from MongoDB", "error", err)
		} else {
			log.Info("Disconnected from MongoDB")
		}
	}
	if c.Postgres != nil {
		c.Postgres.Close()
		log.Info("Closed Postgres pool")
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error("Failed to close Redis client", "error", err)
		} else {
			log.Info("Closed Redis client")
		}
	}
}
