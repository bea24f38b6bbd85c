package domain

import (
	"context"
	"time"
)

// SourceGPI tags every event produced or consumed by the monitor.
const SourceGPI = "gpi"

// EventType identifies the kind of event being published.
type EventType string

const (
	// EventGPIChange carries a newly accepted input value.
	EventGPIChange EventType = "gpi.change"
	// EventGPIWrite carries a requested output value.
	EventGPIWrite EventType = "gpi.write"
)

// Event is the envelope published on the event bus.
type Event struct {
	Source    string    `json:"source"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   []byte    `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish queues an event for delivery. It blocks while the bus is full
	// and returns ErrBusFull if ctx ends first, or ErrBusClosed after Close.
	Publish(ctx context.Context, event Event) error
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) (func(), error)
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) (func(), error)
	// Close drains queued events and prevents new publishes.
	Close()
}
