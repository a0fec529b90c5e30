package domain

import (
	"context"
)

// Hub fans relayed frames out to the open connections
type Hub interface {
	// Start starts the hub
	Start(ctx context.Context) error

	// Stop stops the hub and closes every connection
	Stop() error

	// Register adds a connection to the open set
	Register(client Client) error

	// Unregister removes a connection from the open set
	Unregister(clientID string) error

	// RelayToOthers delivers a frame to every connection except the sender
	RelayToOthers(senderID string, message []byte) error

	// RelayToAll delivers a frame to every connection, the sender included
	RelayToAll(message []byte) error

	// GetClient retrieves a connection by ID
	GetClient(clientID string) (Client, bool)

	// Count returns the number of open connections
	Count() int

	// Stats returns relay statistics
	Stats() HubStats
}

// HubStats provides statistics about the hub
type HubStats struct {
	ConnectedClients int     `json:"connected_clients"`
	MessagesReceived int64   `json:"messages_received"`
	MessagesSent     int64   `json:"messages_sent"`
	MessagesDropped  int64   `json:"messages_dropped"`
	MeanAudience     float64 `json:"mean_audience"`
	MeanBytes        float64 `json:"mean_bytes"`
	Uptime           float64 `json:"uptime_seconds"`
}
