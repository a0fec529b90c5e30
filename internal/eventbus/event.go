package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

// Event types
const (
	// hub side
	EventClientConnected    EventType = "client.connected"
	EventClientDisconnected EventType = "client.disconnected"

	// sync client side
	EventSyncConnected    EventType = "sync.connected"
	EventSyncDisconnected EventType = "sync.disconnected"
	EventSyncMessage      EventType = "sync.message"
	EventSyncClimate      EventType = "sync.climate"
	EventSyncMedia        EventType = "sync.media"

	EventError EventType = "error"
)

// Event represents a system event
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Data      any               `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, source string, data any) *Event {
	return &Event{
		ID:        generateID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
		Metadata:  make(map[string]string),
	}
}

// WithMetadata adds metadata to the event
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

func generateID() string {
	return uuid.NewString()
}
