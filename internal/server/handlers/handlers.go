// Package handlers implements the HTTP command surface of the appliance.
// Every mutating endpoint acknowledges acceptance or rejection
// synchronously; transition outcomes arrive through the event channel.
package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Leshauts/milo/internal/backends"
	"github.com/Leshauts/milo/internal/coordinator"
	"github.com/Leshauts/milo/internal/server/cache"
	"github.com/Leshauts/milo/internal/server/events"
	"github.com/Leshauts/milo/internal/server/response"
	"github.com/Leshauts/milo/internal/server/sse"
	ws "github.com/Leshauts/milo/internal/server/websocket"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	coord     *coordinator.Coordinator
	manager   *backends.Manager
	cache     *cache.Cache
	broker    *events.Broker
	wsHub     *ws.Hub
	sse       *sse.Broadcaster
	upgrader  websocket.Upgrader
	logger    *zerolog.Logger
	startTime time.Time
}

// New creates a handlers instance with all dependencies.
func New(
	coord *coordinator.Coordinator,
	manager *backends.Manager,
	c *cache.Cache,
	broker *events.Broker,
	wsHub *ws.Hub,
	sseBroadcaster *sse.Broadcaster,
	upgrader websocket.Upgrader,
	logger *zerolog.Logger,
) *Handlers {
	return &Handlers{
		coord:     coord,
		manager:   manager,
		cache:     c,
		broker:    broker,
		wsHub:     wsHub,
		sse:       sseBroadcaster,
		upgrader:  upgrader,
		logger:    logger,
		startTime: time.Now(),
	}
}

// HandleHealth returns basic liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HandleReady reports readiness: the state store is always available
// once the process is up, so readiness equals liveness here.
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{"ready": true})
}

// HandleStats reports observer and event-pipeline statistics.
func (h *Handlers) HandleStats(w http.ResponseWriter, _ *http.Request) {
	snap := h.coord.Store().Snapshot()
	response.OK(w, map[string]any{
		"uptime_seconds":     int(time.Since(h.startTime).Seconds()),
		"websocket_clients":  h.wsHub.ClientCount(),
		"sse_clients":        h.sse.ClientCount(),
		"broker_subscribers": h.broker.SubscriberCount(),
		"cache_items":        h.cache.ItemCount(),
		"active_source":      snap.ActiveSource,
		"transitioning":      snap.Transitioning,
	})
}
