package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-club-ticketing/internal/logger"
)

// Publisher writes one JSON encoded message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type Producer struct {
	Writer *kafka.Writer
	log    *logger.Logger
}

// NewProducer builds a writer that routes every message by its own topic.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	return &Producer{
		Writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		log: log,
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	msgBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	p.log.LogKafka("PUBLISH", topic, key)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher drops every message. Used when KAFKA_ENABLED=false.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }
