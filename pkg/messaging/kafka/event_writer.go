package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erain9/exchange/pkg/messaging"
	"github.com/segmentio/kafka-go"
)

// HeaderEventType carries the event type so consumers can filter without
// decoding the payload
const HeaderEventType = "event-type"

const defaultWriteTimeout = 5 * time.Second

// messageWriter is the part of *kafka.Writer the sink needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// WriterConfig configures an EventWriter
type WriterConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// EventWriter publishes journal events to a Kafka topic. Messages are keyed
// by symbol so one book's events land on one partition in order.
type EventWriter struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

// NewEventWriter creates a kafka-go backed event sink
func NewEventWriter(cfg WriterConfig) (*EventWriter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: no topic configured")
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
	return newEventWriter(writer, cfg.Topic, cfg.WriteTimeout), nil
}

func newEventWriter(w messageWriter, topic string, timeout time.Duration) *EventWriter {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &EventWriter{writer: w, topic: topic, timeout: timeout}
}

// Publish implements messaging.EventSink
func (k *EventWriter) Publish(ctx context.Context, event *messaging.Event) error {
	return k.PublishBatch(ctx, []*messaging.Event{event})
}

// PublishBatch writes all events of one engine operation with a single
// WriteMessages call, so they share one batch instead of waiting out the
// batch timeout each
func (k *EventWriter) PublishBatch(ctx context.Context, events []*messaging.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(event.Symbol),
			Value: data,
			Time:  event.Time,
			Headers: []kafka.Header{
				{Key: HeaderEventType, Value: []byte(event.Type)},
			},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to send %d events to kafka topic %s: %w", len(msgs), k.topic, err)
	}
	return nil
}

// Close closes the Kafka writer
func (k *EventWriter) Close() error {
	return k.writer.Close()
}

var _ messaging.BatchSink = (*EventWriter)(nil)
