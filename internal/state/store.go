package state

import "sync"

// Update is a partial mutation of SystemState. Nil pointer fields leave
// the corresponding state untouched; Metadata entries are merged per
// source. ClearError removes the error descriptor, which a non-nil Error
// field would otherwise replace.
type Update struct {
	ActiveSource     *Source
	TargetSource     *Source
	Transitioning    *bool
	RoutingMode      *RoutingMode
	EqualizerEnabled *bool
	Metadata         map[Source]PlaybackMetadata
	Volume           *Volume
	Error            *ErrorDescriptor
	ClearError       bool
}

// Store is the single mutable record of SystemState. Mutations serialize
// through Apply; Snapshot may be called concurrently and never observes a
// partially applied update.
type Store struct {
	mu    sync.RWMutex
	state SystemState
}

// NewStore creates a store in its startup state: no active source, direct
// routing, equalizer off, half volume.
func NewStore() *Store {
	return &Store{
		state: SystemState{
			ActiveSource: SourceNone,
			TargetSource: SourceNone,
			RoutingMode:  RoutingDirect,
			Metadata:     make(map[Source]PlaybackMetadata),
			Volume:       Volume{Level: 50},
		},
	}
}

// Snapshot returns an immutable copy of the current state.
func (s *Store) Snapshot() SystemState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Apply merges a partial update into the state and returns the new full
// snapshot for broadcast. Broadcasting is the caller's responsibility.
func (s *Store) Apply(u Update) SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ActiveSource != nil {
		s.state.ActiveSource = *u.ActiveSource
	}
	if u.TargetSource != nil {
		s.state.TargetSource = *u.TargetSource
	}
	if u.Transitioning != nil {
		s.state.Transitioning = *u.Transitioning
	}
	if u.RoutingMode != nil {
		s.state.RoutingMode = *u.RoutingMode
	}
	if u.EqualizerEnabled != nil {
		s.state.EqualizerEnabled = *u.EqualizerEnabled
	}
	for src, meta := range u.Metadata {
		s.state.Metadata[src] = meta
	}
	if u.Volume != nil {
		v := *u.Volume
		if v.Level < 0 {
			v.Level = 0
		} else if v.Level > 100 {
			v.Level = 100
		}
		s.state.Volume = v
	}
	if u.ClearError {
		s.state.Error = nil
	} else if u.Error != nil {
		e := *u.Error
		s.state.Error = &e
	}

	return s.state.Clone()
}

// Reset returns the store to its startup state. Used on shutdown; the
// store itself is never deleted.
func (s *Store) Reset() SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SystemState{
		ActiveSource: SourceNone,
		TargetSource: SourceNone,
		RoutingMode:  RoutingDirect,
		Metadata:     make(map[Source]PlaybackMetadata),
		Volume:       s.state.Volume,
	}
	return s.state.Clone()
}
