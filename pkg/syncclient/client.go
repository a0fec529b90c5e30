// Package syncclient keeps one dashboard's view of the shared climate, media
// and message slices in step with the broadcast hub.
package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/HMasataka/dashsync/internal/eventbus"
	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/errors"
	"github.com/HMasataka/dashsync/pkg/transport/protocol"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// RetryConfig represents the parameters for when to retry to connect
type RetryConfig struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	Jitter bool
}

// Options configures a Client
type Options struct {
	URL    string
	Logger *logging.Logger
	Dialer *websocket.Dialer
	Header http.Header
	Retry  RetryConfig
	// AutoReconnect redials after a dropped or failed connection
	AutoReconnect bool
	SendBuffer    int
	WriteTimeout  time.Duration
	// ReadTimeout drops a connection that has been silent for this long.
	// Pings from the hub count as traffic.
	ReadTimeout time.Duration
}

// DefaultOptions returns default client options
func DefaultOptions() Options {
	return Options{
		URL:           "ws://localhost:3000/ws",
		AutoReconnect: true,
		SendBuffer:    64,
		WriteTimeout:  10 * time.Second,
		ReadTimeout:   60 * time.Second,
		Retry: RetryConfig{
			Min:    500 * time.Millisecond,
			Max:    10 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
}

// Client is one dashboard's connection to the hub together with its local
// copy of every shared slice. Create one per dashboard with New.
type Client struct {
	opts   Options
	logger *logging.Logger
	errs   errors.Handler
	codec  protocol.Codec
	bus    *eventbus.InMemoryBus

	handlers map[domain.MessageType]func(*domain.Message)

	mu          sync.RWMutex
	state       State
	id          string
	out         chan []byte // outbound queue of the acknowledged connection
	sessionOut  chan []byte // outbound queue of the connection being set up
	ready       chan struct{} // closed while connected
	lastMessage json.RawMessage
	climate     Slice[domain.ClimateSettings]
	media       Slice[domain.MediaState]
	running     bool
	closed      bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a disconnected client. Call Connect to join the hub.
func New(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.Logger == nil {
		opts.Logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaults.ReadTimeout
	}
	if opts.Retry.Min <= 0 {
		opts.Retry = defaults.Retry
	}

	logger := opts.Logger.WithFields(map[string]any{"component": "syncclient"})

	c := &Client{
		opts:    opts,
		logger:  logger,
		errs:    errors.NewDefaultHandler(logger.Logger),
		codec:   protocol.NewJSONCodec(),
		ready:   make(chan struct{}),
		bus:     eventbus.NewInMemoryBus(64),
		climate: NewSlice(domain.DefaultClimate()),
		media:   NewSlice(domain.MediaState{}),
	}

	c.handlers = map[domain.MessageType]func(*domain.Message){
		domain.MessageTypeConnect:       c.handleConnectAck,
		domain.MessageTypeMessage:       c.handleMessage,
		domain.MessageTypeClimateChange: c.handleClimate,
		domain.MessageTypeMediaControl:  c.handleMedia,
	}

	c.bus.Start(context.Background())
	return c
}

// Connect starts connecting to the hub in the background. It returns at once;
// the client turns CONNECTED when the hub acknowledges the connection. Calling
// Connect while a connection is open or being set up has no effect. The
// connection is dropped when ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	if err := validateURL(c.opts.URL); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrClosed
	}
	if c.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.state = StateConnecting

	c.wg.Add(1)
	go c.run(loopCtx)
	return nil
}

// Disconnect closes the connection and stops reconnecting. Local slices keep
// their values. The client can be connected again.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Close disconnects and releases the client. Subscriptions stop receiving
// events and Connect returns ErrClosed. It must not be called from a
// subscription handler.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
	c.bus.Stop()
}

// State returns the current connectivity
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether the hub has acknowledged the connection
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// ID returns the connection ID assigned by the hub, empty when not connected
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// WaitConnected blocks until the client is connected or ctx is done
func (c *Client) WaitConnected(ctx context.Context) error {
	c.mu.RLock()
	ready := c.ready
	c.mu.RUnlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastMessage returns the payload of the most recent message from a peer
func (c *Client) LastMessage() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMessage
}

// Climate returns the climate slice
func (c *Client) Climate() Slice[domain.ClimateSettings] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.climate
}

// Media returns the media slice
func (c *Client) Media() Slice[domain.MediaState] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.media
}

// SendMessage sends payload to every other dashboard. The local last message
// is not touched. Nothing is sent while disconnected.
func (c *Client) SendMessage(payload any) {
	c.emit(domain.MessageTypeMessage, payload)
}

// SendClimateUpdate applies settings locally and sends them to the hub
func (c *Client) SendClimateUpdate(settings domain.ClimateSettings) {
	c.mu.Lock()
	c.climate.propose(settings)
	c.mu.Unlock()

	c.emit(domain.MessageTypeClimateChange, settings)
}

// SendMediaUpdate applies state locally and sends it to the hub
func (c *Client) SendMediaUpdate(state domain.MediaState) {
	c.mu.Lock()
	c.media.propose(state)
	c.mu.Unlock()

	c.emit(domain.MessageTypeMediaControl, state)
}

// revertPlaying clears the playing flag locally without telling anyone
func (c *Client) revertPlaying() {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.media.Current()
	if !s.Playing {
		return
	}
	s.Playing = false
	c.media.propose(s)
}

// emit queues a frame on the open connection. Sends are fire-and-forget:
// failures are logged and never returned.
func (c *Client) emit(messageType domain.MessageType, payload any) {
	ctx := context.Background()

	msg, err := domain.NewMessage(messageType, payload)
	if err != nil {
		c.errs.Handle(ctx, errors.Wrap(err, errors.ErrorTypeProtocol, errors.CodeMarshalError, "dropping unencodable payload").
			WithDetails(string(messageType)))
		return
	}

	data, err := c.codec.Encode(msg)
	if err != nil {
		c.errs.Handle(ctx, err)
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateConnected || c.out == nil {
		c.logger.Debug("send skipped", "type", messageType, "error", domain.ErrNotConnected)
		return
	}

	select {
	case c.out <- data:
	default:
		c.errs.Handle(ctx, errors.New(errors.ErrorTypeTransport, errors.CodeSendBufferFull, "send buffer full, message dropped").
			WithDetails(string(messageType)))
	}
}

// run dials and redials until ctx is cancelled
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = StateDisconnected
		c.mu.Unlock()
	}()

	boff := &backoff.Backoff{
		Min:    c.opts.Retry.Min,
		Max:    c.opts.Retry.Max,
		Factor: c.opts.Retry.Factor,
		Jitter: c.opts.Retry.Jitter,
	}

	for {
		c.setState(StateConnecting)

		acked, err := c.session(ctx)
		c.handleDisconnect()

		if ctx.Err() != nil {
			return
		}

		if acked {
			boff.Reset()
			c.logger.Info("connection lost", "error", err)
		} else {
			c.errs.Handle(ctx, err)
		}

		if !c.opts.AutoReconnect {
			return
		}

		wait := boff.Duration()
		c.logger.Debug("reconnecting", "wait", wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// session runs one connection from dial to close. It reports whether the hub
// acknowledged the connection.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeTransport, errors.CodeDialError, "failed to connect to hub").
			WithDetails(c.opts.URL)
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		// a failed pong surfaces on the next read
		_ = conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteTimeout))
		return nil
	})

	var wg sync.WaitGroup
	defer wg.Wait()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan []byte, c.opts.SendBuffer)
	c.mu.Lock()
	c.sessionOut = out
	c.mu.Unlock()

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-connCtx.Done()
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		c.writePump(connCtx, conn, out)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			acked := c.Connected()
			if !acked {
				err = errors.Wrap(err, errors.ErrorTypeTransport, errors.CodeDialError, "hub closed the connection before acknowledging it").
					WithDetails(c.opts.URL)
			}
			return acked, err
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		c.handleFrame(data)
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-out:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				return
			}
		}
	}
}

// handleFrame applies one frame from the hub
func (c *Client) handleFrame(data []byte) {
	msg, err := c.codec.Decode(data)
	if err != nil {
		c.errs.Handle(context.Background(), err)
		return
	}

	handler, ok := c.handlers[msg.Type]
	if !ok {
		c.logger.Debug("ignoring frame", "type", msg.Type)
		return
	}
	handler(msg)
}

func (c *Client) handleConnectAck(msg *domain.Message) {
	var ack domain.ConnectAck
	if err := msg.Decode(&ack); err != nil {
		c.logger.Warn("invalid connect ack", "error", err)
		return
	}

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.id = ack.ClientID
	c.out = c.sessionOut
	close(c.ready)
	c.mu.Unlock()

	c.logger.Info("connected to hub", "client_id", ack.ClientID)
	c.bus.PublishAsync(eventbus.NewEvent(eventbus.EventSyncConnected, ack.ClientID, nil))
}

// handleMessage stores a peer's message. Its own messages never come back.
func (c *Client) handleMessage(msg *domain.Message) {
	payload := append(json.RawMessage(nil), msg.Data...)

	c.mu.Lock()
	c.lastMessage = payload
	c.mu.Unlock()

	c.bus.PublishAsync(eventbus.NewEvent(eventbus.EventSyncMessage, "hub", payload))
}

// handleClimate confirms the broadcast value and notifies on every receipt
func (c *Client) handleClimate(msg *domain.Message) {
	var settings domain.ClimateSettings
	if err := msg.Decode(&settings); err != nil {
		c.logger.Warn("invalid climate payload", "error", err)
		return
	}

	c.mu.Lock()
	c.climate.confirm(settings)
	c.mu.Unlock()

	c.bus.PublishAsync(eventbus.NewEvent(eventbus.EventSyncClimate, "hub", settings))
}

// handleMedia confirms the broadcast value and notifies only when it differs
// from what is displayed
func (c *Client) handleMedia(msg *domain.Message) {
	var state domain.MediaState
	if err := msg.Decode(&state); err != nil {
		c.logger.Warn("invalid media payload", "error", err)
		return
	}

	c.mu.Lock()
	unchanged := c.media.Current().Equal(state)
	c.media.confirm(state)
	c.mu.Unlock()

	if unchanged {
		return
	}
	c.bus.PublishAsync(eventbus.NewEvent(eventbus.EventSyncMedia, "hub", state))
}

func (c *Client) handleDisconnect() {
	c.mu.Lock()
	wasConnected := c.state == StateConnected
	if wasConnected {
		c.ready = make(chan struct{})
	}
	c.state = StateDisconnected
	c.id = ""
	c.out = nil
	c.sessionOut = nil
	c.mu.Unlock()

	if wasConnected {
		c.bus.PublishAsync(eventbus.NewEvent(eventbus.EventSyncDisconnected, "hub", nil))
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.CodeInvalidURL, "invalid hub url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New(errors.ErrorTypeValidation, errors.CodeInvalidURL, "url needs to start with ws or wss").
			WithDetails(raw)
	}
	if u.User != nil {
		return errors.New(errors.ErrorTypeValidation, errors.CodeInvalidURL, "url can't contain user name and password")
	}
	return nil
}
