package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/erain9/exchange/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ReaderConfig configures an EventConsumer
type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Handler processes one decoded event. A returned error is logged and the
// consumer moves on.
type Handler func(ctx context.Context, event *messaging.Event) error

// EventConsumer reads journal events back from Kafka
type EventConsumer struct {
	reader messageReader
	logger zerolog.Logger
}

// NewEventConsumer creates a consumer group reader for cfg.Topic
func NewEventConsumer(cfg ReaderConfig, logger zerolog.Logger) (*EventConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: brokers and topic are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		CommitInterval: time.Second,
		MaxBytes:       10e6,
	})
	return &EventConsumer{reader: reader, logger: logger}, nil
}

// Consume reads until ctx is cancelled or the reader is closed
func (c *EventConsumer) Consume(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var event messaging.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Warn().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("Skipping undecodable event")
			continue
		}

		if err := handle(ctx, &event); err != nil {
			c.logger.Error().Err(err).
				Str("symbol", event.Symbol).
				Uint64("sequence", event.Sequence).
				Msg("Event handler failed")
		}
	}
}

// Close closes the underlying reader
func (c *EventConsumer) Close() error {
	return c.reader.Close()
}

// SetupConsumer starts a consumer in the background that logs every event it
// receives. It returns nil when Kafka is not configured.
func SetupConsumer(ctx context.Context, cfg ReaderConfig, logger zerolog.Logger) (*EventConsumer, error) {
	consumer, err := NewEventConsumer(cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create Kafka consumer - continuing without Kafka support")
		return nil, err
	}

	go func() {
		logger.Info().Str("topic", cfg.Topic).Msg("Starting Kafka consumer")
		err := consumer.Consume(ctx, func(_ context.Context, e *messaging.Event) error {
			logger.Info().
				Str("type", string(e.Type)).
				Str("symbol", e.Symbol).
				Uint64("sequence", e.Sequence).
				Str("order_id", e.OrderID).
				Str("maker_order_id", e.MakerOrderID).
				Str("taker_order_id", e.TakerOrderID).
				Str("price", e.Price).
				Str("quantity", e.Quantity).
				Msg("Received event")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return consumer, nil
}
