package hub

import (
	"context"

	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/errors"
	"github.com/HMasataka/dashsync/pkg/transport/protocol"
)

// Policy selects the recipients of a relayed frame
type Policy int

const (
	// ToOthers delivers to every connection except the sender
	ToOthers Policy = iota
	// ToAll delivers to every connection, the sender included
	ToAll
)

func (p Policy) String() string {
	if p == ToAll {
		return "all"
	}
	return "others"
}

// RelayHandler forwards one message type through the hub. When the inbound
// frame is in the context it is forwarded byte for byte; otherwise the
// message is re-encoded.
type RelayHandler struct {
	hub         domain.Hub
	codec       protocol.Codec
	logger      *logging.Logger
	messageType domain.MessageType
	policy      Policy
}

// NewRelayHandler creates a handler relaying messageType with policy
func NewRelayHandler(hub domain.Hub, logger *logging.Logger, messageType domain.MessageType, policy Policy) *RelayHandler {
	return &RelayHandler{
		hub:         hub,
		codec:       protocol.NewJSONCodec(),
		logger:      logger,
		messageType: messageType,
		policy:      policy,
	}
}

// Handle implements protocol.Handler
func (h *RelayHandler) Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	data, ok := protocol.FrameFromContext(ctx)
	if !ok {
		var err error
		if data, err = h.codec.Encode(msg); err != nil {
			return nil, err
		}
	}

	senderID, _ := protocol.ClientIDFromContext(ctx)

	logging.FromContext(ctx, h.logger).Info("relaying message",
		"type", msg.Type,
		"policy", h.policy.String(),
	)

	switch h.policy {
	case ToAll:
		return nil, h.hub.RelayToAll(data)
	default:
		if senderID == "" {
			return nil, errors.New(errors.ErrorTypeValidation, errors.CodeInvalidMessage, "sender is unknown")
		}
		return nil, h.hub.RelayToOthers(senderID, data)
	}
}

// CanHandle implements protocol.Handler
func (h *RelayHandler) CanHandle(messageType domain.MessageType) bool {
	return messageType == h.messageType
}
