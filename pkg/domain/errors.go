package domain

import "errors"

// Common domain errors
var (
	// ErrClientNotFound is returned when a client is not found
	ErrClientNotFound = errors.New("client not found")

	// ErrClientAlreadyExists is returned when trying to register a client that already exists
	ErrClientAlreadyExists = errors.New("client already exists")

	// ErrInvalidMessage is returned when a frame or payload cannot be decoded
	ErrInvalidMessage = errors.New("invalid message")

	// ErrHubNotStarted is returned when trying to use a hub that hasn't been started
	ErrHubNotStarted = errors.New("hub not started")

	// ErrHubStopped is returned when trying to use a hub that has been stopped
	ErrHubStopped = errors.New("hub stopped")

	// ErrConnectionClosed is returned when trying to use a closed connection
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotConnected is returned when the channel to the hub is not open
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned when a disposed sync client is used
	ErrClosed = errors.New("sync client closed")
)
