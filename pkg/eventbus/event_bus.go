// Package eventbus hands webhook executions to the workers and receives their completion events.
package eventbus

import (
	"context"

	"github.com/wastorga/sim/pkg/events"
)

// Event is anything published on the bus; its type selects the decoder on the consuming side.
type Event interface {
	GetType() events.EventType
}

// EventPublisher is the queue side of the execution dispatcher. Messages are keyed by
// workflow id so one workflow's executions stay ordered on a partitioned transport.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes decoded events to handlers. Handlers must be registered before
// Subscribe; an event type without a handler is acked and dropped.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event. A returned error nacks the message.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
