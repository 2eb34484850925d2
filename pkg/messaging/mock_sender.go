package messaging

import (
	"context"
	"sync"
)

// Recorder is an in-memory EventSink and SettlementSink for tests and local runs.
type Recorder struct {
	mu           sync.Mutex
	events       []Event
	instructions []SettlementInstruction
	err          error
}

// NewRecorder creates a new Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every following call return err (nil to recover).
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Publish records a copy of the event.
func (r *Recorder) Publish(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, *event)
	return nil
}

// Settle records a copy of the instruction.
func (r *Recorder) Settle(_ context.Context, instruction *SettlementInstruction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.instructions = append(r.instructions, *instruction)
	return nil
}

// Events returns the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// EventsOfType filters recorded events by type.
func (r *Recorder) EventsOfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Instructions returns the recorded settlement instructions.
func (r *Recorder) Instructions() []SettlementInstruction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SettlementInstruction, len(r.instructions))
	copy(out, r.instructions)
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.instructions = nil
}

// Ensure Recorder implements both sinks
var (
	_ EventSink      = (*Recorder)(nil)
	_ SettlementSink = (*Recorder)(nil)
)
