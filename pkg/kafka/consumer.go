// Package kafka carries index lifecycle and search analytics events over
// segmentio/kafka-go. Values are JSON.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/webindex/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. A returned error is retried.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds one topic to a MessageHandler, committing each message
// once it has been handled.
type Consumer struct {
	reader  messageReader
	handler MessageHandler
	retry   resilience.RetryConfig
	backoff time.Duration
	logger  *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on topic. A new group starts at the
// latest offset; old announcements are not replayed.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry:   resilience.RetryConfig{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
		backoff: time.Second,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled. A message whose handler still fails
// after the retries is logged and committed so it cannot stall the
// partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		c.handle(ctx, msg)
		if ctx.Err() != nil {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	log.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))
	err := resilience.Retry(ctx, "kafka handler", c.retry, func(ctx context.Context) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err != nil && ctx.Err() == nil {
		log.Error("giving up on message", "key", string(msg.Key), "error", err)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
