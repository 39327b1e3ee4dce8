// Package events provides the unified event system for real-time state
// updates. It implements a broker pattern that connects the transition
// coordinator and backends to multiple transport mechanisms (WebSocket,
// SSE) through a common event pipeline.
//
// On the wire an event is {category, type, data, source, timestamp};
// internally the (category, type) pair is a closed Kind so dispatch is
// never stringly-typed.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Leshauts/milo/internal/state"
)

// Kind identifies an event as its two-level "category.type" key.
type Kind string

// The closed set of event kinds.
const (
	// System events carry appliance-level state.
	StateChanged       Kind = "system.state_changed"
	TransitionStart    Kind = "system.transition_start"
	TransitionComplete Kind = "system.transition_complete"
	SystemError        Kind = "system.error"

	// Volume events carry volume deltas only.
	VolumeChanged Kind = "volume.volume_changed"

	// Plugin events carry per-source metadata deltas.
	MetadataUpdated Kind = "plugin.metadata_updated"

	// Client events are emitted by the transports themselves.
	ClientConnected Kind = "system.client_connected"
)

// kinds is the exhaustive dispatch table keyed by wire representation.
var kinds = map[Kind]struct{}{
	StateChanged:       {},
	TransitionStart:    {},
	TransitionComplete: {},
	SystemError:        {},
	VolumeChanged:      {},
	MetadataUpdated:    {},
	ClientConnected:    {},
}

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Category returns the part before the dot ("system", "volume", "plugin").
func (k Kind) Category() string {
	if i := strings.IndexByte(string(k), '.'); i >= 0 {
		return string(k)[:i]
	}
	return string(k)
}

// Type returns the part after the dot ("state_changed", ...).
func (k Kind) Type() string {
	if i := strings.IndexByte(string(k), '.'); i >= 0 {
		return string(k)[i+1:]
	}
	return ""
}

// KindOf reassembles a Kind from its wire halves, reporting whether the
// pair names a known kind.
func KindOf(category, typ string) (Kind, bool) {
	k := Kind(category + "." + typ)
	return k, k.Valid()
}

// Event is a single state-change notification.
type Event struct {
	Kind      Kind
	Data      map[string]any
	Source    string
	Timestamp int64 // unix milliseconds
}

// wireEvent is the JSON wire format shared with browser clients.
type wireEvent struct {
	Category  string         `json:"category"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Source    string         `json:"source,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler using the wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		Category:  e.Kind.Category(),
		Type:      e.Kind.Type(),
		Data:      e.Data,
		Source:    e.Source,
		Timestamp: e.Timestamp,
	})
}

// UnmarshalJSON implements json.Unmarshaler, rejecting unknown kinds.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	kind, ok := KindOf(w.Category, w.Type)
	if !ok {
		return fmt.Errorf("unknown event kind %s.%s", w.Category, w.Type)
	}
	e.Kind = kind
	e.Data = w.Data
	e.Source = w.Source
	e.Timestamp = w.Timestamp
	return nil
}

// New creates an event stamped with the current time.
func New(kind Kind, data map[string]any, source string) Event {
	return Event{
		Kind:      kind,
		Data:      data,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewStateChanged creates a system.state_changed event carrying the full
// snapshot under data.full_state.
func NewStateChanged(snapshot state.SystemState, source string) Event {
	return New(StateChanged, map[string]any{"full_state": snapshot}, source)
}

// FullState extracts the snapshot from a system.state_changed event. It
// handles both the in-process case (data.full_state is a SystemState) and
// the post-unmarshal case (a generic JSON object).
func FullState(e Event) (state.SystemState, bool) {
	raw, ok := e.Data["full_state"]
	if !ok {
		return state.SystemState{}, false
	}
	switch v := raw.(type) {
	case state.SystemState:
		return v, true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return state.SystemState{}, false
		}
		var snap state.SystemState
		if err := json.Unmarshal(b, &snap); err != nil {
			return state.SystemState{}, false
		}
		return snap, true
	}
}
