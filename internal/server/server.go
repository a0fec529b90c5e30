package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HMasataka/dashsync/internal/config"
	"github.com/HMasataka/dashsync/internal/eventbus"
	"github.com/HMasataka/dashsync/internal/logging"
	"github.com/HMasataka/dashsync/internal/metrics"
	"github.com/HMasataka/dashsync/pkg/hub"
	"github.com/HMasataka/dashsync/pkg/transport/websocket"
)

const shutdownTimeout = 5 * time.Second

// Server wires the hub, the websocket endpoint and the operational routes
// behind one HTTP listener.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *eventbus.InMemoryBus
	hub      *hub.Hub
	registry *prometheus.Registry
	origin   atomic.Value // string
	router   chi.Router
}

// New builds a server from cfg. Nothing is started until Run or Serve.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.New(cfg.Logging)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hubMetrics, err := metrics.NewHub(registry)
	if err != nil {
		return nil, fmt.Errorf("register hub metrics: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		bus:      eventbus.NewInMemoryBus(cfg.Hub.QueueSize),
		registry: registry,
	}
	s.origin.Store(cfg.Server.AllowedOrigin)

	s.hub = hub.New(hub.Options{
		Logger:    logger.WithFields(map[string]any{"component": "hub"}),
		Metrics:   hubMetrics,
		QueueSize: cfg.Hub.QueueSize,
	})

	s.bus.SubscribeAll(func(e *eventbus.Event) {
		s.logger.Debug("event", "type", e.Type, "source", e.Source, "data", e.Data)
	})

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	clientOptions := websocket.DefaultClientOptions()
	clientOptions.SendBuffer = s.cfg.Hub.SendBuffer
	clientOptions.PingInterval = s.cfg.Hub.PingInterval
	clientOptions.ReadTimeout = s.cfg.Hub.ReadTimeout
	clientOptions.WriteTimeout = s.cfg.Hub.WriteTimeout
	clientOptions.MaxMessageSize = s.cfg.Hub.MaxMessageSize

	ws := websocket.NewServer(
		websocket.WithHub(s.hub),
		websocket.WithLogger(s.logger.WithFields(map[string]any{"component": "websocket"})),
		websocket.WithEventBus(s.bus),
		websocket.WithRouter(hub.NewRouter(s.hub, s.logger)),
		websocket.WithCheckOrigin(websocket.OriginPolicy(s.AllowedOrigin)),
		websocket.WithClientOptions(clientOptions),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))

	r.Get(s.cfg.Server.Path, ws.ServeHTTP)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the broadcast hub
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// AllowedOrigin returns the origin currently admitted on the websocket route
func (s *Server) AllowedOrigin() string {
	return s.origin.Load().(string)
}

// ApplyConfig applies the settings that can change without a restart:
// the allowed origin and the log level.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.origin.Store(cfg.Server.AllowedOrigin)
	s.logger.SetLevel(cfg.Logging.Level)

	if cfg.Server.Port != s.cfg.Server.Port || cfg.Server.Host != s.cfg.Server.Host {
		s.logger.Warn("listen address change requires a restart",
			"current", s.addr(),
			"requested", net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port)),
		)
	}

	s.logger.Info("configuration applied",
		"allowed_origin", cfg.Server.AllowedOrigin,
		"log_level", cfg.Logging.Level,
	)
}

func (s *Server) addr() string {
	return net.JoinHostPort(s.cfg.Server.Host, fmt.Sprint(s.cfg.Server.Port))
}

// Run listens on the configured address and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve starts the hub and serves on ln until ctx is cancelled. Open
// connections are closed by stopping the hub before the listener drains.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.bus.Start(ctx)
	defer s.bus.Stop()

	if err := s.hub.Start(ctx); err != nil {
		ln.Close()
		return fmt.Errorf("start hub: %w", err)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("server listening",
		"addr", ln.Addr().String(),
		"path", s.cfg.Server.Path,
		"allowed_origin", s.AllowedOrigin(),
	)

	select {
	case err := <-errCh:
		s.hub.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")

	// hijacked websocket connections are not tracked by Shutdown
	s.hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.hub.Stats()); err != nil {
		s.logger.Warn("failed to write health response", "error", err)
	}
}
