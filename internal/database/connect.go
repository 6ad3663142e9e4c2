package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-club-ticketing/internal/config"
	"ms-club-ticketing/internal/logger"
)

const maxConnectAttempts = 5

var retryDelay = 2 * time.Second

// Open connects to PostgreSQL, retrying while the server comes up, and
// returns a bun handle with the configured pool limits.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	sqldb, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	for i := 1; i <= maxConnectAttempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i, maxConnectAttempts))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = sqldb.PingContext(pingCtx)
		cancel()
		if err == nil {
			log.Info("DATABASE", "Connected to PostgreSQL")
			return bun.NewDB(sqldb, pgdialect.New()), nil
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i == maxConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			sqldb.Close()
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	sqldb.Close()
	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", maxConnectAttempts, err)
}
