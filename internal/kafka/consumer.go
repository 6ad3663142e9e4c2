package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-club-ticketing/internal/logger"
	"ms-club-ticketing/internal/models"
)

var (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, log: log}
}

// PaymentStatusHandler applies one gateway status change.
type PaymentStatusHandler func(ctx context.Context, evt models.PaymentStatusEvent) error

// DecodePaymentStatus parses a payment status message.
func DecodePaymentStatus(value []byte) (models.PaymentStatusEvent, error) {
	var evt models.PaymentStatusEvent
	if err := json.Unmarshal(value, &evt); err != nil {
		return evt, fmt.Errorf("decode payment status: %w", err)
	}
	if evt.GatewayPaymentID == "" {
		return evt, errors.New("decode payment status: missing gatewayPaymentId")
	}
	return evt, nil
}

// Start reads until ctx is cancelled. Offsets are committed only after the
// handler succeeds. Undecodable messages are committed and skipped.
func (c *Consumer) Start(ctx context.Context, handle PaymentStatusHandler) {
	c.log.LogKafka("CONSUME", c.reader.Config().Topic, "consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		evt, err := DecodePaymentStatus(msg.Value)
		if err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping message at offset %d: %v", msg.Offset, err))
			c.commit(ctx, msg)
			continue
		}

		if !c.apply(ctx, handle, evt) {
			return
		}
		c.commit(ctx, msg)
	}
}

// apply retries a failing message with capped backoff. The partition does not
// advance past it; false means ctx ended first.
func (c *Consumer) apply(ctx context.Context, handle PaymentStatusHandler, evt models.PaymentStatusEvent) bool {
	delay := retryBaseDelay
	for {
		err := handle(ctx, evt)
		if err == nil {
			return true
		}
		c.log.Error("KAFKA", fmt.Sprintf("Payment %s not applied, retrying in %s: %v", evt.GatewayPaymentID, delay, err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if delay *= 2; delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error("KAFKA", fmt.Sprintf("Commit offset %d failed: %v", msg.Offset, err))
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
