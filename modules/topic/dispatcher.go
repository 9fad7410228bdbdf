package topic

import (
	"context"
	"fmt"

	"github.com/example/roomchat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// Broker moves an encoded frame to every subscriber of a topic key.
type Broker interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Dispatcher encodes messages and hands them to a Broker.
type Dispatcher struct {
	broker Broker
	logger types.Logger
}

// NewDispatcher creates a Dispatcher publishing through broker.
func NewDispatcher(broker Broker, logger types.Logger) *Dispatcher {
	return &Dispatcher{
		broker: broker,
		logger: logger,
	}
}

// Publish delivers msg to every subscriber currently registered on key.
func (d *Dispatcher) Publish(ctx context.Context, key string, msg chat.Message) error {
	payload, err := chat.EncodeFrame(msg)
	if err != nil {
		return err
	}
	if err := d.broker.Publish(ctx, key, payload); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", chat.ErrDelivery, key, err)
	}
	d.logger.Debug("Published to topic", "topic", key, "kind", string(msg.Kind))
	return nil
}
