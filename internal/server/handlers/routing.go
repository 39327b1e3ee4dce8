package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Leshauts/milo/internal/server/response"
)

// toggleRequest is the body of multiroom/equalizer toggles.
type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// HandleMultiroom requests a routing-mode change. 202 acknowledges
// acceptance; the reconfiguration outcome is broadcast.
func (h *Handlers) HandleMultiroom(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err.Error())
		return
	}

	if err := h.coord.RequestRoutingModeChange(r.Context(), req.Enabled); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.Accepted(w, map[string]any{"multiroom": req.Enabled})
}

// HandleEqualizer requests an equalizer toggle.
func (h *Handlers) HandleEqualizer(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err.Error())
		return
	}

	if err := h.coord.RequestEqualizerChange(r.Context(), req.Enabled); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.Accepted(w, map[string]any{"equalizer": req.Enabled})
}

// multiroomClientsCacheKey caches the snapcast status briefly so UI
// polling doesn't hammer the RPC port.
const multiroomClientsCacheKey = "multiroom.clients"

// HandleMultiroomClients lists the clients connected to the multiroom bus.
func (h *Handlers) HandleMultiroomClients(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.Get(multiroomClientsCacheKey); ok {
		response.OK(w, cached)
		return
	}

	sc := h.manager.Snapcast()
	if sc == nil {
		response.ServiceUnavailable(w, "multiroom server not configured")
		return
	}

	status, err := sc.Status(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Snapcast status fetch failed")
		response.ServiceUnavailable(w, "multiroom server unreachable")
		return
	}

	h.cache.SetWithTTL(multiroomClientsCacheKey, status.Clients, 2*time.Second)
	response.OK(w, status.Clients)
}
