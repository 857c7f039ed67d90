// Package kafka wraps segmentio/kafka-go with a JSON producer and a
// commit-after-handle consumer used for the usage event pipeline.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/selectyouruniversity/pkg/config"
	"github.com/segmentio/kafka-go"
)

const (
	minFetchBackoff = 100 * time.Millisecond
	maxFetchBackoff = 10 * time.Second
)

// MessageHandler processes one message. A non-nil error leaves the message
// uncommitted so it is redelivered after a rebalance.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type Consumer struct {
	reader  *kafka.Reader
	topic   string
	handler MessageHandler
	logger  *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on topic. A group seen for the first
// time starts from the oldest retained event.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    1 << 20,
			MaxWait:     time.Second,
			StartOffset: kafka.FirstOffset,
		}),
		topic:   topic,
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

func (c *Consumer) Topic() string { return c.topic }

// Lag is the number of messages behind the partition head, as of the last
// fetch.
func (c *Consumer) Lag() int64 { return c.reader.Stats().Lag }

// Start consumes until ctx is cancelled, then closes the reader. Fetch
// errors back off exponentially up to maxFetchBackoff so an unreachable
// broker is not hammered.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()

	backoff := minFetchBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff = min(2*backoff, maxFetchBackoff)
			continue
		}
		backoff = minFetchBackoff

		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding %T from kafka message: %w", v, err)
	}
	return v, nil
}
