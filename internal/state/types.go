// Package state holds the authoritative in-memory record of the audio
// appliance: which source is active, whether a transition is in flight,
// routing and equalizer flags, per-source playback metadata, and volume.
// All mutation goes through the Store; everything else renders snapshots.
package state

import "time"

// Source identifies one of the mutually exclusive audio inputs.
type Source string

// Known audio sources.
const (
	// SourceNone means no source is active (startup or full teardown).
	SourceNone Source = "none"

	// SourceLibrespot is the Spotify Connect streaming receiver.
	SourceLibrespot Source = "librespot"

	// SourceBluetooth is the Bluetooth audio sink.
	SourceBluetooth Source = "bluetooth"

	// SourceROC is the network audio (ROC) receiver.
	SourceROC Source = "roc"
)

// Sources returns the selectable sources, in display order.
// SourceNone is deliberately excluded: it is a state, not a choice.
func Sources() []Source {
	return []Source{SourceLibrespot, SourceBluetooth, SourceROC}
}

// Valid reports whether s names a selectable source.
func (s Source) Valid() bool {
	switch s {
	case SourceLibrespot, SourceBluetooth, SourceROC:
		return true
	}
	return false
}

// ParseSource validates a raw source id from a request.
func ParseSource(raw string) (Source, bool) {
	s := Source(raw)
	if s.Valid() {
		return s, true
	}
	return SourceNone, false
}

// RoutingMode selects where decoded audio goes.
type RoutingMode string

// Routing modes.
const (
	// RoutingDirect sends audio straight to the local output.
	RoutingDirect RoutingMode = "direct"

	// RoutingMultiroom fans audio out to the shared multiroom bus.
	RoutingMultiroom RoutingMode = "multiroom"
)

// PlaybackMetadata is the per-source now-playing and connection info
// pushed by the source's backend daemon.
type PlaybackMetadata struct {
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

// Volume is the single system volume shared across sources.
type Volume struct {
	Level int  `json:"level"` // 0..100
	Muted bool `json:"muted"`
}

// ErrorDescriptor records the last transition or backend failure.
// It is cleared on the next successful transition.
type ErrorDescriptor struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Source    Source    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SystemState is the complete appliance state. Snapshots of it are what
// every observer renders from; the full struct rides in
// system.state_changed events as data.full_state.
type SystemState struct {
	ActiveSource     Source                      `json:"active_source"`
	TargetSource     Source                      `json:"target_source,omitempty"`
	Transitioning    bool                        `json:"transitioning"`
	RoutingMode      RoutingMode                 `json:"routing_mode"`
	EqualizerEnabled bool                        `json:"equalizer_enabled"`
	Metadata         map[Source]PlaybackMetadata `json:"metadata"`
	Volume           Volume                      `json:"volume"`
	Error            *ErrorDescriptor            `json:"error,omitempty"`
}

// Clone returns a deep copy safe to hand to observers.
func (s SystemState) Clone() SystemState {
	out := s
	out.Metadata = make(map[Source]PlaybackMetadata, len(s.Metadata))
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}
