package queue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/erain9/exchange/pkg/messaging"
	"github.com/rs/zerolog/log"
)

// ErrDispatcherClosed is returned after Close
var ErrDispatcherClosed = errors.New("settlement dispatcher is closed")

const (
	defaultWorkers = 4
	defaultBuffer  = 1024
)

// Dispatcher decouples the matching path from a slow settlement sink. Each
// symbol is pinned to one worker so instructions of a book keep their order.
// A full buffer pushes back on the caller instead of losing instructions.
type Dispatcher struct {
	sink    messaging.SettlementSink
	queues  []chan *messaging.SettlementInstruction
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewDispatcher starts workers goroutines, each with a buffer of the given size
func NewDispatcher(sink messaging.SettlementSink, workers, buffer int) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	d := &Dispatcher{
		sink:   sink,
		queues: make([]chan *messaging.SettlementInstruction, workers),
	}
	for i := range d.queues {
		d.queues[i] = make(chan *messaging.SettlementInstruction, buffer)
		d.wg.Add(1)
		go d.work(d.queues[i])
	}
	return d
}

func (d *Dispatcher) work(queue <-chan *messaging.SettlementInstruction) {
	defer d.wg.Done()
	for in := range queue {
		if err := d.sink.Settle(context.Background(), in); err != nil {
			log.Error().Err(err).
				Str("symbol", in.Symbol).
				Uint64("sequence", in.Sequence).
				Msg("Error sending settlement")
		}
	}
}

// Settle enqueues the instruction, waiting for room in its worker's buffer
// until ctx is done
func (d *Dispatcher) Settle(ctx context.Context, in *messaging.SettlementInstruction) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queues[d.shard(in.Symbol)] <- in:
		return nil
	case <-ctx.Done():
		d.dropped.Add(1)
		return fmt.Errorf("settlement %s/%d not queued: %w", in.Symbol, in.Sequence, ctx.Err())
	}
}

// Dropped is the number of instructions given up because the caller's
// context ended while waiting for room
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) shard(symbol string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(len(d.queues)))
}

// Close stops accepting instructions and waits for the buffers to drain
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

var _ messaging.SettlementSink = (*Dispatcher)(nil)
