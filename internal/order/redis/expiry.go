package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"ms-club-ticketing/internal/logger"
)

// ExpiryHandler is told about every hold counter Redis drops on TTL.
type ExpiryHandler func(ctx context.Context, eventID, sectorID string)

// WatchHoldExpiry enables keyspace expiry notifications and calls fn for
// each expired hold key until ctx is done.
func WatchHoldExpiry(ctx context.Context, rdb *redis.Client, log *logger.Logger, fn ExpiryHandler) error {
	if err := rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	}

	channel := fmt.Sprintf("__keyevent@%d__:expired", rdb.Options().DB)
	pubsub := rdb.PSubscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	log.Info("REDIS", "Subscribed to "+channel)

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !strings.HasPrefix(msg.Payload, holdKeyPrefix) {
					continue
				}
				eventID, sectorID, ok := ParseHoldKey(msg.Payload)
				if !ok {
					continue
				}
				log.LogHold("EXPIRED", eventID, sectorID, "hold window elapsed")
				fn(ctx, eventID, sectorID)
			}
		}
	}()
	return nil
}
