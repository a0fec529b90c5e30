package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/HMasataka/dashsync/internal/eventbus"
	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/pkg/domain"
	"github.com/HMasataka/dashsync/pkg/errors"
	"github.com/HMasataka/dashsync/pkg/transport/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

// MessageRouter is an interface for routing messages
type MessageRouter interface {
	Handle(ctx context.Context, msg *domain.Message) (*domain.Message, error)
}

// ServerOptions represents websocket server options
type ServerOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	Hub             domain.Hub
	Logger          *logging.Logger
	EventBus        eventbus.Bus
	Router          MessageRouter
	Client          ClientOptions
}

// Server accepts dashboard connections and joins them to the hub
type Server struct {
	upgrader websocket.Upgrader
	hub      domain.Hub
	logger   *logging.Logger
	errs     errors.Handler
	eventBus eventbus.Bus
	codec    protocol.Codec
	options  ServerOptions
}

// NewServer creates a new WebSocket server
func NewServer(opts ...ServerOption) *Server {
	options := ServerOptions{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     OriginPolicy(func() string { return "" }),
		Client:          DefaultClientOptions(),
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = logging.New(logging.Config{Level: "info"})
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  options.ReadBufferSize,
			WriteBufferSize: options.WriteBufferSize,
			CheckOrigin:     options.CheckOrigin,
		},
		hub:      options.Hub,
		logger:   options.Logger,
		errs:     errors.NewDefaultHandler(options.Logger.Logger),
		eventBus: options.EventBus,
		codec:    protocol.NewJSONCodec(),
		options:  options,
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		s.errs.Handle(r.Context(), errors.Wrap(err, errors.ErrorTypeTransport, errors.CodeUpgradeFailed, "websocket upgrade rejected").
			WithDetails("origin "+r.Header.Get("Origin")+" from "+r.RemoteAddr))
		return
	}

	clientID := xid.New().String()

	clientOptions := s.options.Client
	clientOptions.ID = clientID

	client := NewClient(clientID, conn, s.logger, clientOptions)

	client.Receive(func(message []byte) error {
		err := s.handleMessage(client, message)
		if err != nil {
			s.publish(eventbus.EventError, map[string]string{
				"client_id": clientID,
				"error":     err.Error(),
			})
		}
		return err
	})

	// The ack is queued before the connection joins the hub, so it is always
	// the first frame the peer sees.
	if err := s.sendAck(client); err != nil {
		s.logger.Error("failed to queue connect ack", "error", err, "client_id", clientID)
		client.Close()
		return
	}

	if err := s.hub.Register(client); err != nil {
		s.logger.Error("failed to register client",
			"error", err,
			"client_id", clientID,
		)
		client.Close()
		return
	}

	s.publish(eventbus.EventClientConnected, map[string]string{
		"client_id":   clientID,
		"remote_addr": r.RemoteAddr,
	})

	client.Start()

	s.logger.Info("client connected",
		"client_id", clientID,
		"remote_addr", r.RemoteAddr,
	)

	<-client.Context().Done()
	client.Wait()

	if err := s.hub.Unregister(clientID); err != nil {
		s.logger.Debug("unregister after disconnect",
			"error", err,
			"client_id", clientID,
		)
	}

	s.publish(eventbus.EventClientDisconnected, map[string]string{
		"client_id": clientID,
	})

	s.logger.Info("client disconnected", "client_id", clientID)
}

func (s *Server) sendAck(client *Client) error {
	ack, err := domain.NewMessage(domain.MessageTypeConnect, domain.ConnectAck{ClientID: client.ID()})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.CodeMarshalError, "failed to build connect ack")
	}

	data, err := s.codec.Encode(ack)
	if err != nil {
		return err
	}

	return client.Send(context.Background(), data)
}

func (s *Server) publish(eventType eventbus.EventType, data map[string]string) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.PublishAsync(eventbus.NewEvent(eventType, "websocket-server", data))
}

// handleMessage decodes one inbound frame and routes it
func (s *Server) handleMessage(client *Client, message []byte) error {
	client.Logger().Debug("received message", "size", len(message))

	msg, err := s.codec.Decode(message)
	if err != nil {
		return err
	}

	if s.options.Router == nil {
		s.logger.Warn("no router configured")
		return nil
	}

	ctx := protocol.WithClientID(client.Context(), client.ID())
	ctx = protocol.WithFrame(ctx, message)
	ctx = logging.WithLogger(ctx, client.Logger())

	response, err := s.options.Router.Handle(ctx, msg)
	if err != nil {
		return err
	}

	if response == nil {
		return nil
	}

	data, err := s.codec.Encode(response)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return client.Send(ctx, data)
}
