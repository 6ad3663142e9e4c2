package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-club-ticketing/internal/config"
	"ms-club-ticketing/internal/logger"
)

// Connect opens the hold store client and checks it answers.
func Connect(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 20,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		log.Error("REDIS", fmt.Sprintf("failed to connect to %s: %v", cfg.Addr, err))
		return nil, err
	}
	log.Info("REDIS", "connected to hold store at "+cfg.Addr)
	return client, nil
}
