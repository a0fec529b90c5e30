package domain

import (
	"context"
)

// Client represents one open connection as seen by the hub
type Client interface {
	// ID returns the identifier assigned to the connection on handshake
	ID() string

	// Send queues a frame for delivery to the connection
	Send(ctx context.Context, message []byte) error

	// Close closes the connection
	Close() error

	// Context is cancelled once the connection is gone
	Context() context.Context
}

// MessageHandler is a function that handles incoming frames
type MessageHandler func(message []byte) error
