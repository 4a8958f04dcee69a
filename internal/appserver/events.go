package appserver

// Event represents a server lifecycle event.
// Minimal and stable: name + registry key and optional fields via key/values.
type Event struct {
	Name   string
	Key    string
	Fields map[string]any
}

// EventPublisher receives events from managers and the registry.
// Implementations should be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
