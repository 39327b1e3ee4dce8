package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"

	"github.com/Leshauts/milo/internal/server/events"
	ws "github.com/Leshauts/milo/internal/server/websocket"
)

// HandleWebSocket upgrades an observer connection. The first frame the
// observer receives is a full state snapshot of its attach time;
// everything after that flows from the hub.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	// Snapshot before registration. Events broadcast between this write
	// and the hub processing the registration are not replayed; the
	// next state_changed event carries a full snapshot and resyncs the
	// observer.
	initial := events.NewStateChanged(h.coord.Store().Snapshot(), "server")
	if data, merr := json.Marshal(initial); merr == nil {
		if werr := conn.WriteMessage(gws.TextMessage, data); werr != nil {
			_ = conn.Close()
			return
		}
	}

	client := ws.NewClient(uuid.NewString(), h.wsHub, conn)
	h.wsHub.Register(client)

	h.broker.Publish(events.New(events.ClientConnected, map[string]any{
		"client_id": client.ID(),
	}, "server"))

	go client.WritePump()
	go client.ReadPump()
}

// HandleSSE streams events over Server-Sent Events.
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sse.ServeHTTP(w, r)
}
