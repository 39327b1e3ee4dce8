package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Leshauts/milo/internal/backends"
	"github.com/Leshauts/milo/internal/server/response"
	"github.com/Leshauts/milo/internal/state"
)

// HandleState returns the current full SystemState snapshot. This is the
// synchronous snapshot fetch used by cold-loading clients and by the
// subscription registry when attaching to a live channel.
func (h *Handlers) HandleState(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, h.coord.Store().Snapshot())
}

// HandleListSources returns the selectable sources and which is active.
func (h *Handlers) HandleListSources(w http.ResponseWriter, _ *http.Request) {
	snap := h.coord.Store().Snapshot()
	sources := make([]map[string]any, 0, len(state.Sources()))
	for _, src := range state.Sources() {
		entry := map[string]any{
			"id":     src,
			"active": src == snap.ActiveSource,
		}
		if meta, ok := snap.Metadata[src]; ok {
			entry["metadata"] = meta
		}
		sources = append(sources, entry)
	}
	response.OK(w, sources)
}

// HandleActivateSource requests a switch to the given source. A 202
// acknowledges acceptance; the transition outcome is broadcast.
func (h *Handlers) HandleActivateSource(w http.ResponseWriter, r *http.Request, sourceID string) {
	source, ok := state.ParseSource(sourceID)
	if !ok {
		response.NotFound(w, "unknown source", sourceID)
		return
	}

	if err := h.coord.RequestSourceChange(r.Context(), source); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.Accepted(w, map[string]any{"target_source": source})
}

// playbackRequest is the optional body of a playback command.
type playbackRequest struct {
	PositionMs int64 `json:"position_ms"`
}

// HandlePlayback forwards a transport command to the active source. Not
// subject to the transition lock.
func (h *Handlers) HandlePlayback(w http.ResponseWriter, r *http.Request, sourceID, command string) {
	source, ok := state.ParseSource(sourceID)
	if !ok {
		response.NotFound(w, "unknown source", sourceID)
		return
	}
	cmd := backends.PlaybackCommand(command)
	if !cmd.Valid() {
		response.BadRequest(w, "unknown playback command", command)
		return
	}

	snap := h.coord.Store().Snapshot()
	if snap.ActiveSource != source {
		response.Conflict(w, "SOURCE_NOT_ACTIVE", "playback commands go to the active source only")
		return
	}

	var req playbackRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid request body", err.Error())
			return
		}
	}

	if err := h.coord.Playback(r.Context(), cmd, req.PositionMs); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, map[string]any{"command": cmd})
}

// HandleMetadataPush receives a metadata update pushed by a source
// daemon (the inbound half of the backend collaborator interface).
func (h *Handlers) HandleMetadataPush(w http.ResponseWriter, r *http.Request, sourceID string) {
	source, ok := state.ParseSource(sourceID)
	if !ok {
		response.NotFound(w, "unknown source", sourceID)
		return
	}

	var meta state.PlaybackMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		response.BadRequest(w, "invalid metadata body", err.Error())
		return
	}

	h.manager.PushMetadata(source, meta)
	response.Accepted(w, map[string]any{"source": source})
}
