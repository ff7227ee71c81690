package events

import "sync"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MemoryEmitter retains the most recent events in order of emission, capped at
// a fixed capacity. It backs the node's event feed and keeps tests simple.
type MemoryEmitter struct {
	mu     sync.Mutex
	cap    int
	events []Event
}

// NewMemoryEmitter creates an emitter retaining at most capacity events; a
// non-positive capacity falls back to a sensible default.
func NewMemoryEmitter(capacity int) *MemoryEmitter {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryEmitter{cap: capacity}
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(evt Event) {
	if evt == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	if len(m.events) > m.cap {
		m.events = m.events[len(m.events)-m.cap:]
	}
}

// Events returns a snapshot of the retained events, oldest first.
func (m *MemoryEmitter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
