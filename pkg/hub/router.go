package hub

import (
	"context"

	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/transport/protocol"
)

// Router dispatches inbound frames to the relay handlers
type Router struct {
	registry *protocol.DefaultHandlerRegistry
}

// NewRouter wires the dashboard events to their relay policies:
// free-form messages skip the sender, climate and media changes echo back to it.
func NewRouter(hub domain.Hub, logger *logging.Logger) *Router {
	registry := protocol.NewHandlerRegistry()

	registry.Register(domain.MessageTypeMessage, NewRelayHandler(hub, logger, domain.MessageTypeMessage, ToOthers))
	registry.Register(domain.MessageTypeClimateChange, NewRelayHandler(hub, logger, domain.MessageTypeClimateChange, ToAll))
	registry.Register(domain.MessageTypeMediaControl, NewRelayHandler(hub, logger, domain.MessageTypeMediaControl, ToAll))

	return &Router{registry: registry}
}

// Handle implements protocol.HandlerRegistry
func (r *Router) Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	return r.registry.Handle(ctx, msg)
}

// Register implements protocol.HandlerRegistry
func (r *Router) Register(messageType domain.MessageType, handler protocol.Handler) {
	r.registry.Register(messageType, handler)
}

// Get implements protocol.HandlerRegistry
func (r *Router) Get(messageType domain.MessageType) (protocol.Handler, bool) {
	return r.registry.Get(messageType)
}
