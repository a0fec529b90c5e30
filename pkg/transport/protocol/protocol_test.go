package protocol

import (
	"context"
	"testing"

	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := NewJSONCodec()

	msg, err := domain.NewMessage(domain.MessageTypeMediaControl, domain.MediaState{Index: 1, Playing: true})
	require.NoError(t, err)

	data, err := codec.Encode(msg)
	require.NoError(t, err)

	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, domain.MessageTypeMediaControl, got.Type)
	assert.JSONEq(t, `{"idx":1,"playing":true}`, string(got.Data))
}

func TestJSONCodecRejectsGarbage(t *testing.T) {
	codec := NewJSONCodec()

	_, err := codec.Decode([]byte("not json"))
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidMessage))

	_, err = codec.Decode([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestRegistryRoutesByType(t *testing.T) {
	r := NewHandlerRegistry()

	var seen domain.MessageType
	r.Register(domain.MessageTypeClimateChange, HandlerFunc(func(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
		seen = msg.Type
		return nil, nil
	}))

	reply, err := r.Handle(context.Background(), &domain.Message{Type: domain.MessageTypeClimateChange})
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, domain.MessageTypeClimateChange, seen)

	_, err = r.Handle(context.Background(), &domain.Message{Type: "unknown"})
	assert.True(t, errors.HasCode(err, errors.CodeNoHandler))
}

func TestClientIDContext(t *testing.T) {
	_, ok := ClientIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := ClientIDFromContext(WithClientID(context.Background(), "c1"))
	assert.True(t, ok)
	assert.Equal(t, "c1", id)
}

func TestFrameContext(t *testing.T) {
	_, ok := FrameFromContext(context.Background())
	assert.False(t, ok)

	frame, ok := FrameFromContext(WithFrame(context.Background(), []byte(`{"type":"message"}`)))
	assert.True(t, ok)
	assert.Equal(t, `{"type":"message"}`, string(frame))
}
