package events

import "chowfast/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Payload is implemented by events that render a canonical attribute map.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects rendered events in emission order. The host hands a Buffer
// to every invocation and only publishes its contents once the invocation has
// committed.
type Buffer struct {
	events []types.Event
}

// Emit implements the Emitter interface. Events that cannot render a payload
// are dropped.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	payload, ok := evt.(Payload)
	if !ok {
		return
	}
	rendered := payload.Event()
	if rendered == nil {
		return
	}
	b.events = append(b.events, *rendered.Clone())
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []types.Event {
	if b == nil {
		return nil
	}
	out := make([]types.Event, len(b.events))
	for i := range b.events {
		out[i] = *b.events[i].Clone()
	}
	return out
}

// Len reports how many events are buffered.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.events)
}
