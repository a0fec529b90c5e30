package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/internal/metrics"
	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/eclesh/welford"
)

// Options represents hub configuration options
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Hub
	// QueueSize bounds the number of requests waiting for the run loop
	QueueSize int
}

type requestKind int

const (
	requestRegister requestKind = iota
	requestUnregister
	requestRelayOthers
	requestRelayAll
)

// request is one unit of work for the run loop. Every membership change and
// every relay goes through the same queue, so they are applied in arrival order.
type request struct {
	kind     requestKind
	client   domain.Client
	clientID string
	message  []byte
	done     chan error
}

// Hub implements the domain.Hub interface
type Hub struct {
	clients  sync.Map // map[string]domain.Client
	count    atomic.Int64
	requests chan *request
	logger   *logging.Logger
	metrics  *metrics.Hub

	ctx      context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Statistics
	messagesReceived atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
	statsMu          sync.Mutex
	audience         *welford.Stats
	bytes            *welford.Stats
	startTime        time.Time
}

// New creates a new hub
func New(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = logging.New(logging.Config{Level: "info"})
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	return &Hub{
		requests:  make(chan *request, opts.QueueSize),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		audience:  welford.New(),
		bytes:     welford.New(),
		startTime: time.Now(),
	}
}

// Start implements domain.Hub
func (h *Hub) Start(ctx context.Context) error {
	if h.started.Load() {
		return nil
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.wg.Add(1)
	go h.run()
	h.started.Store(true)
	h.logger.Info("hub started")
	return nil
}

// Stop implements domain.Hub
func (h *Hub) Stop() error {
	if !h.started.Load() {
		return nil
	}

	h.stopOnce.Do(func() {
		h.logger.Info("stopping hub")
		h.cancel()
		h.wg.Wait()

		h.clients.Range(func(key, value any) bool {
			if client, ok := value.(domain.Client); ok {
				client.Close()
			}
			h.clients.Delete(key)
			return true
		})
		h.count.Store(0)
		h.metrics.SetConnections(0)

		h.logger.Info("hub stopped")
	})
	return nil
}

// Register implements domain.Hub
func (h *Hub) Register(client domain.Client) error {
	return h.submit(&request{kind: requestRegister, client: client})
}

// Unregister implements domain.Hub. The connection is closed after the run
// loop has dropped it, so a slow close never holds up relays.
func (h *Hub) Unregister(clientID string) error {
	req := &request{kind: requestUnregister, clientID: clientID}
	if err := h.submit(req); err != nil {
		return err
	}

	if req.client != nil {
		req.client.Close()
	}
	return nil
}

// RelayToOthers implements domain.Hub
func (h *Hub) RelayToOthers(senderID string, message []byte) error {
	return h.submit(&request{kind: requestRelayOthers, clientID: senderID, message: message})
}

// RelayToAll implements domain.Hub
func (h *Hub) RelayToAll(message []byte) error {
	return h.submit(&request{kind: requestRelayAll, message: message})
}

// submit queues req and waits for the run loop to apply it
func (h *Hub) submit(req *request) error {
	if !h.started.Load() {
		return domain.ErrHubNotStarted
	}

	req.done = make(chan error, 1)

	select {
	case h.requests <- req:
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	}

	select {
	case err := <-req.done:
		return err
	case <-h.ctx.Done():
		return domain.ErrHubStopped
	}
}

// GetClient implements domain.Hub
func (h *Hub) GetClient(clientID string) (domain.Client, bool) {
	if value, ok := h.clients.Load(clientID); ok {
		return value.(domain.Client), true
	}
	return nil, false
}

// Count implements domain.Hub
func (h *Hub) Count() int {
	return int(h.count.Load())
}

// run is the main hub loop
func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case req := <-h.requests:
			var err error
			switch req.kind {
			case requestRegister:
				err = h.handleRegister(req.client)
			case requestUnregister:
				req.client, err = h.handleUnregister(req.clientID)
			case requestRelayOthers:
				h.handleRelay(req.clientID, req.message)
			case requestRelayAll:
				h.handleRelay("", req.message)
			}
			req.done <- err
		}
	}
}

// handleRegister handles client registration
func (h *Hub) handleRegister(client domain.Client) error {
	clientID := client.ID()

	if _, loaded := h.clients.LoadOrStore(clientID, client); loaded {
		h.logger.Warn("client already registered", "client_id", clientID)
		return fmt.Errorf("%w: %s", domain.ErrClientAlreadyExists, clientID)
	}

	total := h.count.Add(1)
	h.metrics.SetConnections(int(total))

	h.logger.Info("client registered",
		"client_id", clientID,
		"total_clients", total,
	)
	return nil
}

// handleUnregister drops the client from the open set and returns it for
// the caller to close
func (h *Hub) handleUnregister(clientID string) (domain.Client, error) {
	value, ok := h.clients.LoadAndDelete(clientID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrClientNotFound, clientID)
	}

	total := h.count.Add(-1)
	h.metrics.SetConnections(int(total))

	h.logger.Info("client unregistered",
		"client_id", clientID,
		"total_clients", total,
	)
	return value.(domain.Client), nil
}

// handleRelay hands message to every open connection except excludeID.
// A recipient that cannot take the frame is skipped and the rest still get it.
func (h *Hub) handleRelay(excludeID string, message []byte) {
	h.messagesReceived.Add(1)

	policy := metrics.PolicyAll
	if excludeID != "" {
		policy = metrics.PolicyOthers
	}
	h.metrics.Relayed(policy, len(message))

	var sent, dropped int

	h.clients.Range(func(key, value any) bool {
		if key.(string) == excludeID {
			return true
		}
		client, ok := value.(domain.Client)
		if !ok {
			return true
		}

		if err := client.Send(h.ctx, message); err != nil {
			dropped++
			h.logger.Debug("skipped recipient",
				"client_id", client.ID(),
				"error", err,
			)
			return true
		}
		sent++
		return true
	})

	h.messagesSent.Add(int64(sent))
	h.messagesDropped.Add(int64(dropped))
	h.metrics.Delivered(sent)
	h.metrics.Dropped(dropped)

	h.statsMu.Lock()
	h.audience.Add(float64(sent + dropped))
	h.bytes.Add(float64(len(message)))
	h.statsMu.Unlock()

	h.logger.Debug("relay complete",
		"policy", policy,
		"sent", sent,
		"dropped", dropped,
	)
}

// Stats implements domain.Hub
func (h *Hub) Stats() domain.HubStats {
	h.statsMu.Lock()
	meanAudience := h.audience.Mean()
	meanBytes := h.bytes.Mean()
	h.statsMu.Unlock()

	return domain.HubStats{
		ConnectedClients: h.Count(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		MessagesDropped:  h.messagesDropped.Load(),
		MeanAudience:     meanAudience,
		MeanBytes:        meanBytes,
		Uptime:           time.Since(h.startTime).Seconds(),
	}
}
