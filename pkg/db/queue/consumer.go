package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/erain9/exchange/pkg/messaging"
	"github.com/rs/zerolog"
)

// SettlementConsumer reads settlement instructions from every partition of a
// topic and hands them to a SettlementSink
type SettlementConsumer struct {
	consumer sarama.Consumer
	topic    string
	logger   zerolog.Logger
}

// NewSettlementConsumer connects to brokers
func NewSettlementConsumer(brokers []string, topic string, logger zerolog.Logger) (*SettlementConsumer, error) {
	consumer, err := sarama.NewConsumer(brokers, sarama.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return &SettlementConsumer{consumer: consumer, topic: topic, logger: logger}, nil
}

// Consume blocks until ctx is done or every partition consumer is closed
func (c *SettlementConsumer) Consume(ctx context.Context, sink messaging.SettlementSink) error {
	partitions, err := c.consumer.Partitions(c.topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions of %s: %w", c.topic, err)
	}
	if len(partitions) == 0 {
		partitions = []int32{0}
	}

	var wg sync.WaitGroup
	for _, partition := range partitions {
		pc, err := c.consumer.ConsumePartition(c.topic, partition, sarama.OffsetOldest)
		if err != nil {
			return fmt.Errorf("failed to consume partition %d: %w", partition, err)
		}

		wg.Add(1)
		go func(partition int32, pc sarama.PartitionConsumer) {
			defer wg.Done()
			defer pc.Close()
			c.consumePartition(ctx, partition, pc, sink)
		}(partition, pc)
	}

	wg.Wait()
	return nil
}

func (c *SettlementConsumer) consumePartition(ctx context.Context, partition int32, pc sarama.PartitionConsumer, sink messaging.SettlementSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			in, err := DecodeInstruction(msg.Value)
			if err != nil {
				c.logger.Warn().Err(err).Int32("partition", partition).Int64("offset", msg.Offset).
					Msg("Skipping undecodable settlement")
				continue
			}
			if err := sink.Settle(ctx, in); err != nil {
				c.logger.Error().Err(err).Str("symbol", in.Symbol).Uint64("sequence", in.Sequence).
					Msg("Settlement failed")
			}
		case cerr, ok := <-pc.Errors():
			if !ok {
				return
			}
			c.logger.Error().Err(cerr.Err).Int32("partition", partition).Msg("Kafka consumer error")
		}
	}
}

// Close closes the consumer
func (c *SettlementConsumer) Close() error {
	return c.consumer.Close()
}
