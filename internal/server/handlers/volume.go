package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Leshauts/milo/internal/coordinator"
	"github.com/Leshauts/milo/internal/server/response"
)

// HandleVolume applies a volume change (delta or absolute, optional
// mute). The response carries the resulting authoritative volume; the
// backend call behind it is coalesced by the coordinator.
func (h *Handlers) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req coordinator.VolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body", err.Error())
		return
	}
	if req.Absolute == nil && req.Delta == 0 && req.Mute == nil {
		response.BadRequest(w, "empty volume request", "one of absolute, delta, or mute is required")
		return
	}

	vol, err := h.coord.RequestVolumeChange(r.Context(), req)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, vol)
}
