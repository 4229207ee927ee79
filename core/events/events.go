package events

// Event represents a structured state change emitted by a native module.
// Attributes hold string-rendered payload fields so downstream consumers
// (RPC streams, indexers, log shippers) never need module-specific types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// It is the default wired into engines so event emission stays optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// CollectEmitter records every emitted event in order. Test helper.
type CollectEmitter struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (c *CollectEmitter) Emit(evt Event) {
	c.Events = append(c.Events, evt)
}
