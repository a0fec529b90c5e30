package domain

import (
	"encoding/json"
	"time"

	"github.com/rs/xid"
)

// MessageType names a channel event
type MessageType string

const (
	MessageTypeMessage       MessageType = "message"
	MessageTypeClimateChange MessageType = "climateChange"
	MessageTypeMediaControl  MessageType = "mediaControl"
	MessageTypeConnect       MessageType = "connect"
)

// Message is the frame exchanged over the channel. Data is opaque to the hub.
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ConnectAck is sent by the server once a connection has joined the hub
type ConnectAck struct {
	ClientID string `json:"id"`
}

// TestMessage is the payload of the dashboard's test button
type TestMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage wraps payload into a frame of the given type
func NewMessage(messageType MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        xid.New().String(),
		Type:      messageType,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// Decode decodes the frame payload into v
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return ErrInvalidMessage
	}
	return json.Unmarshal(m.Data, v)
}
