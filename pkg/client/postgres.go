package client

import (
	"context"
	"fmt"
	"slotkeeper/pkg/logger"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func (c *Client) SetPostgres(ctx context.Context, log *logger.Logger, databaseURL string) error {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("invalid Postgres URL: %w", err)
	}
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open Postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping Postgres: %w", err)
	}

	log.Info("Successfully connected to Postgres", "max_conns", cfg.MaxConns)
	c.Postgres = pool
	return nil
}
