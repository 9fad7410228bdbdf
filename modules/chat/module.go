package chat

import (
	"context"
	"fmt"

	"github.com/example/roomchat/events"
	"github.com/example/roomchat/modules/registry"
	"github.com/example/roomchat/modules/storage"
	"github.com/example/roomchat/modules/topic"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module wires the router, presence controller and room service over the
// storage module's services and the configured topic broker.
type Module struct {
	mode     DeliveryMode
	registry *registry.Registry
	broker   topic.Broker
	eventBus mono.EventBus
	rooms    RoomStore
	messages MessageStore
	history  HistoryStore

	router   *Router
	presence *Presence
	service  *RoomService
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new chat module.
func NewModule(mode DeliveryMode, logger types.Logger) *Module {
	return &Module{
		mode:     mode,
		registry: registry.New(),
		logger:   logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"storage"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "storage":
		adapter := storage.NewAdapter(container)
		m.rooms = adapter
		m.messages = adapter
		m.history = adapter
	}
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// SetBroker overrides the event bus as the topic broker (called from main.go).
func (m *Module) SetBroker(broker topic.Broker) {
	m.broker = broker
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.TopicMessageV1.ToBase(),
	}
}

// Start assembles the delivery pipeline.
func (m *Module) Start(_ context.Context) error {
	if m.rooms == nil || m.messages == nil || m.history == nil {
		return fmt.Errorf("storage dependency not set")
	}

	broker := m.broker
	if broker == nil {
		if m.eventBus == nil {
			return fmt.Errorf("event bus not set")
		}
		broker = topic.NewEventBusBroker(m.eventBus)
	}

	topics := NewTopicNotifier(topic.NewDispatcher(broker, m.logger))
	var live Notifier
	switch m.mode {
	case DeliveryDirect:
		live = NewDirectNotifier(m.registry, m.logger)
	case DeliveryTopic:
		live = topics
	default:
		return fmt.Errorf("unknown delivery mode %q", m.mode)
	}

	m.router = NewRouter(m.messages, live, topics, m.logger)
	m.presence = NewPresence(m.rooms, m.registry, m.router, m.logger)
	m.service = NewRoomService(m.rooms, m.history, m.registry)

	m.logger.Info("Chat module started", "deliveryMode", string(m.mode))
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	stats := m.registry.Stats()
	m.logger.Info("Chat module stopped",
		"rooms", stats.Rooms,
		"connections", stats.Connections)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	stats := m.registry.Stats()
	return mono.HealthStatus{
		Healthy: m.router != nil,
		Message: "operational",
		Details: map[string]any{
			"delivery_mode": string(m.mode),
			"live_rooms":    stats.Rooms,
			"connections":   stats.Connections,
		},
	}
}

// Mode returns the configured delivery mode.
func (m *Module) Mode() DeliveryMode {
	return m.mode
}

// Registry returns the live room registry.
func (m *Module) Registry() *registry.Registry {
	return m.registry
}

// Router returns the message router. Nil before Start.
func (m *Module) Router() *Router {
	return m.router
}

// Presence returns the presence controller. Nil before Start.
func (m *Module) Presence() *Presence {
	return m.presence
}

// Rooms returns the room service. Nil before Start.
func (m *Module) Rooms() *RoomService {
	return m.service
}
