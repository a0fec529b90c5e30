package protocol

import (
	"context"
	"sync"

	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/errors"
)

// Handler defines the interface for handling protocol messages
type Handler interface {
	// Handle processes a message and returns an optional reply for the sender
	Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error)

	// CanHandle checks if the handler can handle a specific message type
	CanHandle(messageType domain.MessageType) bool
}

// HandlerFunc is a function adapter for Handler that accepts every type
type HandlerFunc func(ctx context.Context, msg *domain.Message) (*domain.Message, error)

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	return f(ctx, msg)
}

// CanHandle implements Handler
func (f HandlerFunc) CanHandle(domain.MessageType) bool {
	return true
}

// HandlerRegistry manages message handlers
type HandlerRegistry interface {
	// Register registers a handler for a message type
	Register(messageType domain.MessageType, handler Handler)

	// Get retrieves a handler for a message type
	Get(messageType domain.MessageType) (Handler, bool)

	// Handle routes a message to the appropriate handler
	Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error)
}

// DefaultHandlerRegistry is the default implementation of HandlerRegistry
type DefaultHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[domain.MessageType]Handler
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *DefaultHandlerRegistry {
	return &DefaultHandlerRegistry{
		handlers: make(map[domain.MessageType]Handler),
	}
}

// Register implements HandlerRegistry
func (r *DefaultHandlerRegistry) Register(messageType domain.MessageType, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[messageType] = handler
}

// Get implements HandlerRegistry
func (r *DefaultHandlerRegistry) Get(messageType domain.MessageType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[messageType]
	return handler, ok
}

// Handle implements HandlerRegistry
func (r *DefaultHandlerRegistry) Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	handler, ok := r.Get(msg.Type)
	if !ok || !handler.CanHandle(msg.Type) {
		return nil, errors.New(errors.ErrorTypeProtocol, errors.CodeNoHandler, "no handler found for message type").
			WithDetails(string(msg.Type))
	}

	return handler.Handle(ctx, msg)
}
