package protocol

import (
	"context"
)

type clientIDKey struct{}

// WithClientID attaches the ID of the connection a message arrived on
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// ClientIDFromContext returns the connection ID stored by WithClientID
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientIDKey{}).(string)
	return id, ok && id != ""
}

type frameKey struct{}

// WithFrame attaches the raw bytes a message was decoded from
func WithFrame(ctx context.Context, frame []byte) context.Context {
	return context.WithValue(ctx, frameKey{}, frame)
}

// FrameFromContext returns the raw frame stored by WithFrame
func FrameFromContext(ctx context.Context) ([]byte, bool) {
	frame, ok := ctx.Value(frameKey{}).([]byte)
	return frame, ok && len(frame) > 0
}
