package protocol

import (
	"encoding/json"

	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/errors"
)

// Codec defines the interface for message encoding/decoding
type Codec interface {
	// Encode encodes a domain message to bytes
	Encode(msg *domain.Message) ([]byte, error)

	// Decode decodes bytes to a domain message
	Decode(data []byte) (*domain.Message, error)
}

// JSONCodec implements Codec using JSON
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Encode implements the Codec interface
func (c *JSONCodec) Encode(msg *domain.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, errors.CodeMarshalError, "failed to encode message")
	}
	return data, nil
}

// Decode implements the Codec interface. A frame without a type is rejected.
func (c *JSONCodec) Decode(data []byte) (*domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(domain.ErrInvalidMessage, errors.ErrorTypeProtocol, errors.CodeInvalidMessage, "failed to decode message").
			WithDetails(err.Error())
	}
	if msg.Type == "" {
		return nil, errors.Wrap(domain.ErrInvalidMessage, errors.ErrorTypeProtocol, errors.CodeInvalidMessage, "message type is required")
	}
	return &msg, nil
}
