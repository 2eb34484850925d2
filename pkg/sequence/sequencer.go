package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers.
// The zero value is ready to use and starts at 1.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer whose first Next() returns start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}
