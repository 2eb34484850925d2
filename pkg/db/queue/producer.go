package queue

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/erain9/exchange/pkg/messaging"
)

const maxRetry = 5

// newSyncProducer is swapped out in tests
var newSyncProducer = sarama.NewSyncProducer

// SettlementProducer publishes settlement instructions to a Kafka topic
// through a sarama sync producer
type SettlementProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSettlementProducer connects to brokers
func NewSettlementProducer(brokers []string, topic string) (*SettlementProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = maxRetry
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := newSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &SettlementProducer{producer: producer, topic: topic}, nil
}

// Settle implements messaging.SettlementSink
func (p *SettlementProducer) Settle(ctx context.Context, in *messaging.SettlementInstruction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeInstruction(in)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(in.Symbol),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send settlement to Kafka: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *SettlementProducer) Close() error {
	return p.producer.Close()
}

var _ messaging.SettlementSink = (*SettlementProducer)(nil)
