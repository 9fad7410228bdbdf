package topic

import (
	"context"
	"errors"

	"github.com/example/roomchat/events"
	"github.com/go-monolith/mono"
)

// EventBusBroker publishes topic frames as TopicMessage events on the
// application event bus.
type EventBusBroker struct {
	bus mono.EventBus
}

// NewEventBusBroker creates an EventBusBroker over bus.
func NewEventBusBroker(bus mono.EventBus) *EventBusBroker {
	return &EventBusBroker{bus: bus}
}

// Publish implements Broker.
func (b *EventBusBroker) Publish(_ context.Context, key string, payload []byte) error {
	if b.bus == nil {
		return errors.New("event bus not set")
	}
	return events.TopicMessageV1.Publish(b.bus, events.TopicMessageEvent{
		Topic:   key,
		Payload: payload,
	}, nil)
}
