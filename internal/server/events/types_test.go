package events

import (
	"encoding/json"
	"testing"

	"github.com/Leshauts/milo/internal/state"
)

func TestKind_CategoryAndType(t *testing.T) {
	tests := []struct {
		kind     Kind
		category string
		typ      string
	}{
		{StateChanged, "system", "state_changed"},
		{TransitionStart, "system", "transition_start"},
		{TransitionComplete, "system", "transition_complete"},
		{SystemError, "system", "error"},
		{VolumeChanged, "volume", "volume_changed"},
		{MetadataUpdated, "plugin", "metadata_updated"},
		{ClientConnected, "system", "client_connected"},
	}

	for _, tt := range tests {
		if got := tt.kind.Category(); got != tt.category {
			t.Errorf("%s: Category() = %q, want %q", tt.kind, got, tt.category)
		}
		if got := tt.kind.Type(); got != tt.typ {
			t.Errorf("%s: Type() = %q, want %q", tt.kind, got, tt.typ)
		}
		if !tt.kind.Valid() {
			t.Errorf("%s: Valid() = false", tt.kind)
		}
	}
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf("system", "state_changed")
	if !ok || kind != StateChanged {
		t.Errorf("KindOf(system, state_changed) = %q, %v", kind, ok)
	}

	if _, ok := KindOf("system", "bogus"); ok {
		t.Error("KindOf accepted an unknown type")
	}
	if _, ok := KindOf("bogus", "state_changed"); ok {
		t.Error("KindOf accepted an unknown category")
	}
}

func TestEvent_WireFormat(t *testing.T) {
	evt := New(VolumeChanged, map[string]any{"level": 30, "muted": false}, "coordinator")

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// The wire shape splits the kind into category and type
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal wire: %v", err)
	}
	if wire["category"] != "volume" {
		t.Errorf("category = %v, want volume", wire["category"])
	}
	if wire["type"] != "volume_changed" {
		t.Errorf("type = %v, want volume_changed", wire["type"])
	}
	if wire["source"] != "coordinator" {
		t.Errorf("source = %v, want coordinator", wire["source"])
	}
	if _, ok := wire["timestamp"]; !ok {
		t.Error("timestamp missing from wire format")
	}

	// Round-trip back into an Event
	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if back.Kind != VolumeChanged {
		t.Errorf("Kind = %q, want %q", back.Kind, VolumeChanged)
	}
	if back.Timestamp != evt.Timestamp {
		t.Errorf("Timestamp = %d, want %d", back.Timestamp, evt.Timestamp)
	}
}

func TestEvent_UnmarshalRejectsUnknownKind(t *testing.T) {
	raw := []byte(`{"category":"system","type":"no_such_event","data":{},"timestamp":1}`)
	var evt Event
	if err := json.Unmarshal(raw, &evt); err == nil {
		t.Error("expected error for unknown event kind")
	}
}

func TestFullState(t *testing.T) {
	snap := state.SystemState{
		ActiveSource: state.SourceLibrespot,
		RoutingMode:  state.RoutingMultiroom,
		Volume:       state.Volume{Level: 65},
		Metadata: map[state.Source]state.PlaybackMetadata{
			state.SourceLibrespot: {Title: "Test Track", Connected: true},
		},
	}

	evt := NewStateChanged(snap, "test")

	// In-process: the snapshot rides through as a typed struct
	got, ok := FullState(evt)
	if !ok {
		t.Fatal("FullState returned false for in-process event")
	}
	if got.ActiveSource != state.SourceLibrespot {
		t.Errorf("ActiveSource = %q, want librespot", got.ActiveSource)
	}

	// After a wire round-trip the snapshot is a generic JSON object
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, ok = FullState(back)
	if !ok {
		t.Fatal("FullState returned false after wire round-trip")
	}
	if got.ActiveSource != state.SourceLibrespot {
		t.Errorf("ActiveSource = %q, want librespot", got.ActiveSource)
	}
	if got.RoutingMode != state.RoutingMultiroom {
		t.Errorf("RoutingMode = %q, want multiroom", got.RoutingMode)
	}
	if got.Volume.Level != 65 {
		t.Errorf("Volume.Level = %d, want 65", got.Volume.Level)
	}
	if meta := got.Metadata[state.SourceLibrespot]; meta.Title != "Test Track" || !meta.Connected {
		t.Errorf("Metadata = %+v, want Title=Test Track Connected=true", meta)
	}

	// Events without a snapshot report false
	if _, ok := FullState(New(VolumeChanged, map[string]any{"level": 1}, "test")); ok {
		t.Error("FullState returned true for an event without full_state")
	}
}
