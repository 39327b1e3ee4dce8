// Package client provides the observer-side API for milo: a REST
// client for commands and snapshot fetches, a WebSocket channel for
// real-time events, and a subscription registry that manages the
// channel's lifecycle by reference count.
//
// The package speaks the wire format only. It deliberately does not
// share types with the server internals, so an out-of-process observer
// built against this package tracks the JSON contract, not the server's
// memory layout.
package client

import (
	"encoding/json"
	"time"
)

// Event is one real-time event as it appears on the wire.
type Event struct {
	Category  string         `json:"category"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Source    string         `json:"source,omitempty"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
}

// Kind returns the event kind as "category.type".
func (e Event) Kind() string {
	return e.Category + "." + e.Type
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// FullState extracts the state snapshot carried by a
// system.state_changed event, or nil if the event carries none.
func (e Event) FullState() *State {
	raw, ok := e.Data["full_state"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil
	}
	return &st
}

// Metadata is the per-source now-playing info as rendered by the server.
type Metadata struct {
	Title      string    `json:"title,omitempty"`
	Artist     string    `json:"artist,omitempty"`
	Album      string    `json:"album,omitempty"`
	ArtworkURL string    `json:"artwork_url,omitempty"`
	Position   int64     `json:"position_ms,omitempty"`
	Duration   int64     `json:"duration_ms,omitempty"`
	Playing    bool      `json:"playing"`
	Connected  bool      `json:"connected"`
	DeviceName string    `json:"device_name,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// SourceInfo is one selectable source as listed by the server.
type SourceInfo struct {
	ID       string    `json:"id"`
	Active   bool      `json:"active"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Volume is the shared system volume.
type Volume struct {
	Level int  `json:"level"`
	Muted bool `json:"muted"`
}

// StateError describes the last transition or backend failure.
type StateError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the complete appliance state snapshot.
type State struct {
	ActiveSource     string              `json:"active_source"`
	TargetSource     string              `json:"target_source,omitempty"`
	Transitioning    bool                `json:"transitioning"`
	RoutingMode      string              `json:"routing_mode"`
	EqualizerEnabled bool                `json:"equalizer_enabled"`
	Metadata         map[string]Metadata `json:"metadata"`
	Volume           Volume              `json:"volume"`
	Error            *StateError         `json:"error,omitempty"`
}

// VolumeRequest asks the server for a volume change. Exactly one of
// Absolute or Delta should be set; Mute may accompany either.
type VolumeRequest struct {
	Absolute    *int  `json:"absolute,omitempty"`
	Delta       int   `json:"delta,omitempty"`
	Mute        *bool `json:"mute,omitempty"`
	ClientSteps int   `json:"client_steps,omitempty"`
}
