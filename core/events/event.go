package events

import "sync"

// Event represents a structured state change emitted by a gateway endpoint.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter broadcasts events to downstream subscribers (e.g. the status API,
// indexers, facilitators watching for intents to relay).
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default when a component does not care about event delivery.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// Recorder retains every emitted event in order. It backs tests and the
// status API's recent-events view.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt *Event) {
	if evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

// Last returns the most recent event of the given type, or nil.
func (r *Recorder) Last(eventType string) *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i]
		}
	}
	return nil
}
