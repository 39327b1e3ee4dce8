// Package server provides the HTTP server for the milo control API and
// its real-time event distribution (WebSocket, SSE).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Leshauts/milo/internal/backends"
	"github.com/Leshauts/milo/internal/coordinator"
	"github.com/Leshauts/milo/internal/server/cache"
	"github.com/Leshauts/milo/internal/server/events"
	"github.com/Leshauts/milo/internal/server/events/adapters"
	"github.com/Leshauts/milo/internal/server/sse"
	ws "github.com/Leshauts/milo/internal/server/websocket"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	coord          *coordinator.Coordinator
	manager        *backends.Manager
	cache          *cache.Cache
	broker         *events.Broker
	wsHub          *ws.Hub
	sseBroadcaster *sse.Broadcaster
	upgrader       websocket.Upgrader
	logger         *zerolog.Logger
	config         Config
	ctx            context.Context
	cancel         context.CancelFunc
	startTime      time.Time
}

// New creates a new server instance. The broker it creates is the
// process's single event fan-out point; the coordinator publishes into
// it and both transports subscribe to it.
func New(manager *backends.Manager, logger *zerolog.Logger, cfg Config) *Server {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Second
	}

	broker := events.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	sseBroadcaster := sse.NewBroadcaster(logger)

	broker.Subscribe(adapters.NewWebSocketSubscriber(wsHub))
	broker.Subscribe(adapters.NewSSESubscriber(sseBroadcaster))

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		manager:        manager,
		cache:          cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		broker:         broker,
		wsHub:          wsHub,
		sseBroadcaster: sseBroadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true // Observers connect from arbitrary LAN origins
			},
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// SetCoordinator wires the coordinator in after construction; the
// coordinator needs the broker (via Broker()) and the server needs the
// coordinator, so assembly happens in two steps.
func (s *Server) SetCoordinator(coord *coordinator.Coordinator) {
	s.coord = coord
}

// Broker returns the event broker for publishing events.
func (s *Server) Broker() *events.Broker {
	return s.broker
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *ws.Hub {
	return s.wsHub
}

// SSEBroadcaster returns the SSE broadcaster.
func (s *Server) SSEBroadcaster() *sse.Broadcaster {
	return s.sseBroadcaster
}

// Start starts background services (broker, WebSocket hub, SSE broadcaster).
func (s *Server) Start() {
	go s.broker.Run(s.ctx)
	go s.wsHub.Run(s.ctx)
	go s.sseBroadcaster.Run(s.ctx)
	s.logger.Debug().Msg("Background services started")
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown gracefully shuts down background services.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")
	s.cancel()

	select {
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
	case <-time.After(100 * time.Millisecond):
		s.logger.Info().Msg("Background services shut down")
	}
	return nil
}
