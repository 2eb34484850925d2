package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erain9/exchange/pkg/messaging"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	calls    int
	err      error
	deadline bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	messages chan kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case msg, ok := <-r.messages:
		if !ok {
			return kafka.Message{}, errors.New("io: read/write on closed pipe")
		}
		return msg, nil
	}
}

func (r *fakeReader) Close() error { return nil }

func TestEventWriter_Publish(t *testing.T) {
	w := &fakeWriter{}
	sink := newEventWriter(w, "events", 0)

	event := &messaging.Event{
		Type:         messaging.EventOrderFilled,
		Symbol:       "ABC",
		Sequence:     12,
		Time:         time.Unix(1700000000, 0).UTC(),
		MakerOrderID: "m",
		TakerOrderID: "t",
		Price:        "40.000",
		Quantity:     "10.000",
	}
	require.NoError(t, sink.Publish(context.Background(), event))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "ABC", string(msg.Key))
	assert.True(t, w.deadline, "write should be bounded by a timeout")
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, HeaderEventType, msg.Headers[0].Key)
	assert.Equal(t, "ORDER_FILLED", string(msg.Headers[0].Value))

	var decoded messaging.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, *event, decoded)
}

func TestEventWriter_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	sink := newEventWriter(w, "events", time.Second)

	err := sink.Publish(context.Background(), &messaging.Event{Symbol: "ABC"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Contains(t, err.Error(), "events")
}

func TestEventWriter_OneWritePerOperation(t *testing.T) {
	w := &fakeWriter{}
	sink := newEventWriter(w, "events", time.Second)

	events := []*messaging.Event{
		{Type: messaging.EventOrderAccepted, Symbol: "ABC", Sequence: 7},
		{Type: messaging.EventOrderFilled, Symbol: "ABC", Sequence: 8},
		{Type: messaging.EventOrderFilled, Symbol: "ABC", Sequence: 9},
	}
	// through a fan-out, as the engine sees it
	require.NoError(t, messaging.PublishAll(context.Background(), messaging.MultiSink{sink, messaging.NopSink{}}, events))

	assert.Equal(t, 1, w.calls)
	require.Len(t, w.messages, 3)
	for i, msg := range w.messages {
		var decoded messaging.Event
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, events[i].Sequence, decoded.Sequence)
		assert.Equal(t, string(events[i].Type), string(msg.Headers[0].Value))
	}

	require.NoError(t, sink.PublishBatch(context.Background(), nil))
	assert.Equal(t, 1, w.calls, "empty batch writes nothing")
}

func TestNewEventWriter_Validation(t *testing.T) {
	_, err := NewEventWriter(WriterConfig{Topic: "events"})
	assert.Error(t, err)

	_, err = NewEventWriter(WriterConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	w, err := NewEventWriter(WriterConfig{Brokers: []string{"localhost:9092"}, Topic: "events"})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}

func TestEventConsumer_Consume(t *testing.T) {
	reader := &fakeReader{messages: make(chan kafka.Message, 3)}
	consumer := &EventConsumer{reader: reader, logger: zerolog.Nop()}

	good, err := json.Marshal(&messaging.Event{Type: messaging.EventOrderAccepted, Symbol: "ABC", Sequence: 1})
	require.NoError(t, err)
	reader.messages <- kafka.Message{Value: []byte("not json")}
	reader.messages <- kafka.Message{Value: good}

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan *messaging.Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(ctx, func(_ context.Context, e *messaging.Event) error {
			received <- e
			return nil
		})
	}()

	select {
	case e := <-received:
		assert.Equal(t, messaging.EventOrderAccepted, e.Type)
		assert.Equal(t, uint64(1), e.Sequence)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop on cancel")
	}
}

func TestEventConsumer_HandlerErrorDoesNotStop(t *testing.T) {
	reader := &fakeReader{messages: make(chan kafka.Message, 2)}
	consumer := &EventConsumer{reader: reader, logger: zerolog.Nop()}

	for seq := uint64(1); seq <= 2; seq++ {
		data, err := json.Marshal(&messaging.Event{Symbol: "ABC", Sequence: seq})
		require.NoError(t, err)
		reader.messages <- kafka.Message{Value: data}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan uint64, 2)
	go func() {
		_ = consumer.Consume(ctx, func(_ context.Context, e *messaging.Event) error {
			seen <- e.Sequence
			return errors.New("handler failed")
		})
	}()

	for want := uint64(1); want <= 2; want++ {
		select {
		case got := <-seen:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for sequence %d", want)
		}
	}
}
