package client

import (
	"context"
	"fmt"
	"slotkeeper/pkg/logger"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (c *Client) SetMongo(ctx context.Context, log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, mongoConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
	return nil
}
