package eventbus

import (
	"context"
	"sync"
)

// Handler represents an event handler function
type Handler func(event *Event)

// Bus represents an event bus
type Bus interface {
	// Publish delivers an event to all subscribers on the caller's goroutine
	Publish(event *Event)

	// PublishAsync queues an event for the dispatcher goroutine
	PublishAsync(event *Event)

	// Subscribe subscribes to events of a specific type
	Subscribe(eventType EventType, handler Handler) string

	// SubscribeAll subscribes to all events
	SubscribeAll(handler Handler) string

	// Unsubscribe removes a subscription
	Unsubscribe(id string)

	// Start starts the event bus
	Start(ctx context.Context)

	// Stop stops the event bus
	Stop()
}

// subscription represents a single subscription
type subscription struct {
	id        string
	eventType EventType
	handler   Handler
}

// InMemoryBus is an in-memory implementation of the event bus.
// Events queued with PublishAsync are dispatched one at a time, in order,
// by a single goroutine, so handlers never run concurrently with each other.
type InMemoryBus struct {
	subscribers map[EventType][]*subscription
	allHandlers []*subscription
	mu          sync.RWMutex
	eventChan   chan *Event
	stopped     chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewInMemoryBus creates a new in-memory event bus
func NewInMemoryBus(bufferSize int) *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[EventType][]*subscription),
		allHandlers: make([]*subscription, 0),
		eventChan:   make(chan *Event, bufferSize),
		stopped:     make(chan struct{}),
	}
}

// Publish publishes an event synchronously
func (b *InMemoryBus) Publish(event *Event) {
	// handlers may subscribe or unsubscribe, so call them without the lock held
	for _, sub := range b.snapshot(event.Type) {
		sub.handler(event)
	}
}

func (b *InMemoryBus) snapshot(eventType EventType) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := make([]*subscription, 0, len(b.subscribers[eventType])+len(b.allHandlers))
	subs = append(subs, b.subscribers[eventType]...)
	subs = append(subs, b.allHandlers...)
	return subs
}

// PublishAsync queues an event, blocking while the queue is full.
// Events published after Stop are discarded.
func (b *InMemoryBus) PublishAsync(event *Event) {
	if event == nil {
		return
	}
	select {
	case <-b.stopped:
		return
	default:
	}
	select {
	case b.eventChan <- event:
	case <-b.stopped:
	}
}

// Subscribe subscribes to events of a specific type
func (b *InMemoryBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:        generateID(),
		eventType: eventType,
		handler:   handler,
	}

	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	return sub.id
}

// SubscribeAll subscribes to all events
func (b *InMemoryBus) SubscribeAll(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:      generateID(),
		handler: handler,
	}

	b.allHandlers = append(b.allHandlers, sub)
	return sub.id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *InMemoryBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[eventType] = remove(subs, i)
				return
			}
		}
	}

	for i, sub := range b.allHandlers {
		if sub.id == id {
			b.allHandlers = remove(b.allHandlers, i)
			return
		}
	}
}

// remove copies so that snapshots taken by Publish stay intact
func remove(subs []*subscription, i int) []*subscription {
	out := make([]*subscription, 0, len(subs)-1)
	out = append(out, subs[:i]...)
	return append(out, subs[i+1:]...)
}

// Start starts the dispatcher. Calling it more than once has no effect.
func (b *InMemoryBus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		ctx, b.cancel = context.WithCancel(ctx)
		b.wg.Add(1)
		go b.processEvents(ctx)
	})
}

// Stop stops the dispatcher and waits for the in-flight handler to return.
// Queued events that were not dispatched yet are dropped.
func (b *InMemoryBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopped)
		if b.cancel != nil {
			b.cancel()
		}
	})
	b.wg.Wait()
}

// processEvents processes events from the channel
func (b *InMemoryBus) processEvents(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopped:
			return
		case event := <-b.eventChan:
			b.Publish(event)
		}
	}
}
