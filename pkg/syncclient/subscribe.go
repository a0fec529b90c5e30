package syncclient

import (
	"encoding/json"
	"sync"

	"github.com/HMasataka/dashsync/internal/eventbus"
	"github.com/HMasataka/dashsync/pkg/domain"
)

// Subscription is the handle returned by every On* method. Handlers run one
// at a time on the client's dispatcher goroutine, in registration order, once
// per received broadcast.
type Subscription struct {
	once        sync.Once
	unsubscribe func()
}

// Unsubscribe detaches the handler. Calling it again has no effect.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.unsubscribe)
}

// OnMessage is called with the payload of every message from a peer
func (c *Client) OnMessage(handler func(payload json.RawMessage)) *Subscription {
	return c.subscribe(eventbus.EventSyncMessage, func(e *eventbus.Event) {
		handler(e.Data.(json.RawMessage))
	})
}

// OnClimateChange is called with every climate broadcast, echoes included
func (c *Client) OnClimateChange(handler func(settings domain.ClimateSettings)) *Subscription {
	return c.subscribe(eventbus.EventSyncClimate, func(e *eventbus.Event) {
		handler(e.Data.(domain.ClimateSettings))
	})
}

// OnMediaControl is called with media broadcasts that change the displayed state
func (c *Client) OnMediaControl(handler func(state domain.MediaState)) *Subscription {
	return c.subscribe(eventbus.EventSyncMedia, func(e *eventbus.Event) {
		handler(e.Data.(domain.MediaState))
	})
}

// OnConnect is called each time the hub acknowledges a connection
func (c *Client) OnConnect(handler func()) *Subscription {
	return c.subscribe(eventbus.EventSyncConnected, func(*eventbus.Event) {
		handler()
	})
}

// OnDisconnect is called each time an acknowledged connection is lost
func (c *Client) OnDisconnect(handler func()) *Subscription {
	return c.subscribe(eventbus.EventSyncDisconnected, func(*eventbus.Event) {
		handler()
	})
}

func (c *Client) subscribe(eventType eventbus.EventType, handler eventbus.Handler) *Subscription {
	id := c.bus.Subscribe(eventType, handler)
	return &Subscription{
		unsubscribe: func() { c.bus.Unsubscribe(id) },
	}
}
