package broadcast

import (
	"context"
	"fmt"

	"github.com/example/roomchat/events"
	"github.com/example/roomchat/modules/topic"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module delivers topic frames to websocket subscribers. Frames arrive as
// TopicMessage events on the event bus or, when configured, from Redis.
type Module struct {
	subs        *Subscriptions
	redis       *topic.RedisBroker
	cancelRedis context.CancelFunc
	done        chan struct{}
	logger      types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.EventConsumerModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new broadcast module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		subs:   NewSubscriptions(),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// SetRedisBroker makes the module consume frames from Redis (called from main.go).
func (m *Module) SetRedisBroker(broker *topic.RedisBroker) {
	m.redis = broker
}

// Subscriptions returns the subscription table for the API module to use.
func (m *Module) Subscriptions() *Subscriptions {
	return m.subs
}

// RegisterEventConsumers registers event handlers.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.TopicMessageV1, m.handleTopicMessage, m,
	); err != nil {
		return fmt.Errorf("failed to register TopicMessage consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", []string{"TopicMessage.v1"})
	return nil
}

// Start begins consuming from Redis when a Redis broker is set.
func (m *Module) Start(_ context.Context) error {
	if m.redis != nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancelRedis = cancel
		m.done = make(chan struct{})
		go func() {
			defer close(m.done)
			m.redis.Subscribe(ctx, m.deliver)
		}()
		m.logger.Info("Broadcast module started", "source", "redis")
		return nil
	}

	m.logger.Info("Broadcast module started", "source", "event-bus")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	if m.cancelRedis != nil {
		m.cancelRedis()
		<-m.done
	}
	topics, subscribers := m.subs.Stats()
	m.logger.Info("Broadcast module stopped",
		"topics", topics,
		"subscribers", subscribers)
	return nil
}

// Health returns the health status.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	topics, subscribers := m.subs.Stats()
	status := mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"topics":      topics,
			"subscribers": subscribers,
		},
	}
	if m.redis != nil {
		if err := m.redis.Ping(ctx); err != nil {
			status.Healthy = false
			status.Message = fmt.Sprintf("redis ping failed: %v", err)
		}
	}
	return status
}

func (m *Module) handleTopicMessage(_ context.Context, event events.TopicMessageEvent, _ *mono.Msg) error {
	if !topic.Valid(event.Topic) {
		m.logger.Warn("Ignoring frame for unknown topic", "topic", event.Topic)
		return nil
	}
	m.deliver(event.Topic, event.Payload)
	return nil
}

func (m *Module) deliver(key string, payload []byte) {
	delivered, failures := m.subs.Deliver(key, payload)
	for _, f := range failures {
		m.logger.Warn("Failed to deliver topic frame",
			"topic", key,
			"subscriberID", f.SubscriberID,
			"error", f.Err)
	}
	m.logger.Debug("Delivered topic frame",
		"topic", key,
		"delivered", delivered,
		"failed", len(failures))
}
