package pebble

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/erain9/exchange/pkg/messaging"
)

// ErrInvalidSymbol is returned for symbols that cannot be encoded in a key
var ErrInvalidSymbol = errors.New("symbol contains a NUL byte")

const (
	keyPrefix       = "journal/"
	watermarkPrefix = "truncated/"
)

// Options configures the embedded journal
type Options struct {
	// Dir is the pebble data directory
	Dir string
	// Sync forces an fsync on every write
	Sync bool
}

// PebbleBackend is an event journal embedded in the process, stored in a
// pebble LSM. Keys are journal/<symbol>\x00<big-endian sequence>, so a
// symbol's events iterate in sequence order.
type PebbleBackend struct {
	db   *pebble.DB
	sync bool
}

// Open opens (or creates) a journal in opts.Dir
func Open(opts Options) (*PebbleBackend, error) {
	db, err := pebble.Open(opts.Dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble journal %s: %w", opts.Dir, err)
	}
	return &PebbleBackend{db: db, sync: opts.Sync}, nil
}

func (b *PebbleBackend) writeOptions() *pebble.WriteOptions {
	if b.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Publish stores event under its symbol and sequence
func (b *PebbleBackend) Publish(_ context.Context, event *messaging.Event) error {
	if strings.IndexByte(event.Symbol, 0) >= 0 {
		return ErrInvalidSymbol
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.db.Set(eventKey(event.Symbol, event.Sequence), data, b.writeOptions())
}

// PublishBatch stores the events of one engine operation in a single atomic
// commit
func (b *PebbleBackend) PublishBatch(_ context.Context, events []*messaging.Event) error {
	batch := b.db.NewBatch()
	defer batch.Close()

	for _, event := range events {
		if strings.IndexByte(event.Symbol, 0) >= 0 {
			return ErrInvalidSymbol
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if err := batch.Set(eventKey(event.Symbol, event.Sequence), data, nil); err != nil {
			return err
		}
	}
	return batch.Commit(b.writeOptions())
}

// Events returns up to limit events of symbol after the given sequence
func (b *PebbleBackend) Events(ctx context.Context, symbol string, after uint64, limit int) ([]*messaging.Event, error) {
	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(symbol, after+1),
		UpperBound: upperBound(symbol),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var events []*messaging.Event
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(events) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var e messaging.Event
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode event %x: %w", iter.Key(), err)
		}
		events = append(events, &e)
	}
	return events, iter.Error()
}

// LastSequence returns the highest sequence ever stored for symbol, 0 if
// none. Truncated events still count, so a restarted book never reuses a
// sequence.
func (b *PebbleBackend) LastSequence(_ context.Context, symbol string) (uint64, error) {
	watermark, err := b.watermark(symbol)
	if err != nil {
		return 0, err
	}

	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(symbol, 0),
		UpperBound: upperBound(symbol),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return watermark, iter.Error()
	}
	last, err := parseSequence(iter.Key())
	if err != nil {
		return 0, err
	}
	return max(last, watermark), nil
}

// Truncate deletes the events of symbol up to and including sequence upTo
func (b *PebbleBackend) Truncate(symbol string, upTo uint64) error {
	watermark, err := b.watermark(symbol)
	if err != nil {
		return err
	}

	batch := b.db.NewBatch()
	defer batch.Close()

	if err := batch.DeleteRange(eventKey(symbol, 0), eventKey(symbol, upTo+1), nil); err != nil {
		return err
	}
	if upTo > watermark {
		if err := batch.Set(watermarkKey(symbol), binary.BigEndian.AppendUint64(nil, upTo), nil); err != nil {
			return err
		}
	}
	return batch.Commit(b.writeOptions())
}

// watermark is the highest sequence removed by Truncate
func (b *PebbleBackend) watermark(symbol string) (uint64, error) {
	value, closer, err := b.db.Get(watermarkKey(symbol))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(value) != 8 {
		return 0, fmt.Errorf("invalid watermark for %s: %x", symbol, value)
	}
	return binary.BigEndian.Uint64(value), nil
}

// Close flushes and closes the database
func (b *PebbleBackend) Close() error {
	return b.db.Close()
}

func symbolPrefix(symbol string) []byte {
	key := make([]byte, 0, len(keyPrefix)+len(symbol)+1)
	key = append(key, keyPrefix...)
	key = append(key, symbol...)
	return append(key, 0)
}

func eventKey(symbol string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(symbolPrefix(symbol), seq)
}

func watermarkKey(symbol string) []byte {
	return append([]byte(watermarkPrefix), symbol...)
}

func upperBound(symbol string) []byte {
	key := symbolPrefix(symbol)
	key[len(key)-1] = 1
	return key
}

func parseSequence(key []byte) (uint64, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("invalid journal key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), nil
}
