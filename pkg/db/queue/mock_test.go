package queue

import (
	"sync"

	"github.com/IBM/sarama"
)

// mockProducer implements just enough of sarama.SyncProducer for our tests
type mockProducer struct {
	mu           sync.Mutex
	sentMessages []*sarama.ProducerMessage
	err          error
}

func (m *mockProducer) SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, 0, m.err
	}
	m.sentMessages = append(m.sentMessages, msg)
	return 0, int64(len(m.sentMessages) - 1), nil
}

func (m *mockProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMessages = append(m.sentMessages, msgs...)
	return nil
}

func (m *mockProducer) sent() []*sarama.ProducerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*sarama.ProducerMessage(nil), m.sentMessages...)
}

func (m *mockProducer) Close() error {
	return nil
}

func (m *mockProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return 0
}

func (m *mockProducer) BeginTxn() error {
	return nil
}

func (m *mockProducer) CommitTxn() error {
	return nil
}

func (m *mockProducer) AbortTxn() error {
	return nil
}

func (m *mockProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (m *mockProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (m *mockProducer) IsTransactional() bool {
	return false
}

type mockConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (m *mockConsumer) ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error) {
	return &mockPartitionConsumer{
		messages: m.messages,
		errors:   m.errors,
	}, nil
}

func (m *mockConsumer) Topics() ([]string, error) {
	return []string{}, nil
}

func (m *mockConsumer) Partitions(topic string) ([]int32, error) {
	return []int32{0}, nil
}

func (m *mockConsumer) HighWaterMarks() map[string]map[int32]int64 {
	return nil
}

func (m *mockConsumer) Close() error {
	close(m.messages)
	close(m.errors)
	return nil
}

func (m *mockConsumer) Pause(topicPartitions map[string][]int32) {}

func (m *mockConsumer) Resume(topicPartitions map[string][]int32) {}

func (m *mockConsumer) PauseAll() {}

func (m *mockConsumer) ResumeAll() {}

type mockPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (m *mockPartitionConsumer) AsyncClose() {}

func (m *mockPartitionConsumer) Close() error {
	return nil
}

func (m *mockPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage {
	return m.messages
}

func (m *mockPartitionConsumer) Errors() <-chan *sarama.ConsumerError {
	return m.errors
}

func (m *mockPartitionConsumer) HighWaterMarkOffset() int64 {
	return 0
}

func (m *mockPartitionConsumer) IsPaused() bool {
	return false
}

func (m *mockPartitionConsumer) Pause() {}

func (m *mockPartitionConsumer) Resume() {}
