// Package coordinator implements the transition state machine that owns
// all mutations of the appliance state: exclusive source selection,
// routing and equalizer changes, and volume. It enforces one transition
// at a time and sequences the slow backend start/stop calls so no
// partially switched state is ever observable.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Leshauts/milo/internal/backends"
	"github.com/Leshauts/milo/internal/server/events"
	"github.com/Leshauts/milo/internal/state"
	"github.com/Leshauts/milo/pkg/errors"
)

// eventSource tags events originating here.
const eventSource = "coordinator"

// Publisher is the slice of the event broker the coordinator needs.
type Publisher interface {
	Publish(events.Event)
}

// Config tunes the coordinator's timing.
type Config struct {
	// BackendTimeout bounds every backend start/stop/reconfigure call.
	// Expiry is a backend failure and triggers rollback.
	BackendTimeout time.Duration

	// VolumeInterval is the single coalescing window for volume
	// requests: the backend sees at most one call per interval plus a
	// trailing call with the final value.
	VolumeInterval time.Duration
}

// DefaultConfig returns production timing.
func DefaultConfig() Config {
	return Config{
		BackendTimeout: 10 * time.Second,
		VolumeInterval: 100 * time.Millisecond,
	}
}

// Coordinator serializes all state mutations. It is the only writer of
// the state store.
type Coordinator struct {
	store   *state.Store
	backend backends.Controller
	pub     Publisher
	logger  *zerolog.Logger
	cfg     Config

	// mu guards the accept/reject decision of a transition. The slow
	// backend work happens outside it; the Transitioning flag keeps
	// other transitions out meanwhile.
	mu sync.Mutex

	volume *volumeThrottle
}

// New creates a coordinator and wires the backend's metadata push into
// the store and broadcast pipeline.
func New(store *state.Store, backend backends.Controller, pub Publisher, logger *zerolog.Logger, cfg Config) *Coordinator {
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = DefaultConfig().BackendTimeout
	}
	if cfg.VolumeInterval <= 0 {
		cfg.VolumeInterval = DefaultConfig().VolumeInterval
	}

	c := &Coordinator{
		store:   store,
		backend: backend,
		pub:     pub,
		logger:  logger,
		cfg:     cfg,
	}
	c.volume = newVolumeThrottle(cfg.VolumeInterval, c.sendVolume)
	backend.OnMetadata(c.handleMetadata)
	return c
}

// Store exposes read access for snapshot endpoints.
func (c *Coordinator) Store() *state.Store {
	return c.store
}

// RequestSourceChange validates and accepts a switch to target. The
// return value acknowledges acceptance only; the transition itself runs
// asynchronously and its outcome is broadcast. Switching to the already
// active source is a no-op success.
func (c *Coordinator) RequestSourceChange(_ context.Context, target state.Source) error {
	if !target.Valid() {
		return errors.NewSourceError(string(target))
	}

	c.mu.Lock()
	snap := c.store.Snapshot()
	if snap.Transitioning {
		c.mu.Unlock()
		return errors.NewBusyError(string(target), string(snap.TargetSource))
	}
	if snap.ActiveSource == target {
		c.mu.Unlock()
		return nil
	}
	transitioning := true
	c.store.Apply(state.Update{Transitioning: &transitioning, TargetSource: &target})
	c.mu.Unlock()

	c.pub.Publish(events.New(events.TransitionStart, map[string]any{
		"from": snap.ActiveSource,
		"to":   target,
	}, eventSource))

	go c.executeSourceChange(snap, target)
	return nil
}

// executeSourceChange performs the stop/start unit of work and commits
// or rolls back. It owns the Transitioning flag until a terminal
// broadcast has been published.
func (c *Coordinator) executeSourceChange(snap state.SystemState, target state.Source) {
	prev := snap.ActiveSource

	if prev != state.SourceNone {
		if err := c.withTimeout(func(ctx context.Context) error {
			return c.backend.Stop(ctx, prev)
		}); err != nil {
			// The previous source is presumed still running.
			c.failTransition(target, prev, err)
			return
		}
	}

	if err := c.withTimeout(func(ctx context.Context) error {
		return c.backend.Start(ctx, target, snap.RoutingMode, snap.EqualizerEnabled)
	}); err != nil {
		// The previous source was already stopped; try to bring it
		// back, falling to none when that fails too.
		restored := state.SourceNone
		if prev != state.SourceNone {
			if rerr := c.withTimeout(func(ctx context.Context) error {
				return c.backend.Start(ctx, prev, snap.RoutingMode, snap.EqualizerEnabled)
			}); rerr == nil {
				restored = prev
			} else {
				c.logger.Error().Err(rerr).
					Str("source", string(prev)).
					Msg("Rollback restart failed, no source active")
			}
		}
		c.failTransition(target, restored, err)
		return
	}

	c.commitSourceChange(prev, target)
}

// commitSourceChange publishes the terminal broadcasts for a successful
// switch. The previous source's connection flags are cleared but its
// last-known track info is kept.
func (c *Coordinator) commitSourceChange(prev, target state.Source) {
	none := state.SourceNone
	done := false
	upd := state.Update{
		ActiveSource:  &target,
		TargetSource:  &none,
		Transitioning: &done,
		ClearError:    true,
	}
	if prev != state.SourceNone {
		snap := c.store.Snapshot()
		if meta, ok := snap.Metadata[prev]; ok {
			meta.Connected = false
			meta.Playing = false
			upd.Metadata = map[state.Source]state.PlaybackMetadata{prev: meta}
		}
	}
	newSnap := c.store.Apply(upd)

	c.logger.Info().
		Str("from", string(prev)).
		Str("to", string(target)).
		Msg("Source transition complete")

	c.pub.Publish(events.New(events.TransitionComplete, map[string]any{
		"active_source": target,
	}, eventSource))
	c.pub.Publish(events.NewStateChanged(newSnap, eventSource))
}

// failTransition records the failure, restores the safe state, and
// publishes the terminal broadcasts.
func (c *Coordinator) failTransition(target, restored state.Source, err error) {
	none := state.SourceNone
	done := false
	desc := &state.ErrorDescriptor{
		Code:      "BACKEND_FAILURE",
		Message:   err.Error(),
		Source:    target,
		Timestamp: time.Now(),
	}
	newSnap := c.store.Apply(state.Update{
		ActiveSource:  &restored,
		TargetSource:  &none,
		Transitioning: &done,
		Error:         desc,
	})

	c.logger.Error().Err(err).
		Str("target", string(target)).
		Str("restored", string(restored)).
		Msg("Source transition failed")

	c.pub.Publish(events.New(events.SystemError, map[string]any{
		"code":    desc.Code,
		"message": desc.Message,
		"source":  desc.Source,
	}, eventSource))
	c.pub.Publish(events.NewStateChanged(newSnap, eventSource))
}

// RequestRoutingModeChange accepts a switch between direct and multiroom
// output. Same mutual-exclusion discipline as a source change: rejected
// while a transition is in flight, executed asynchronously.
func (c *Coordinator) RequestRoutingModeChange(_ context.Context, multiroom bool) error {
	mode := state.RoutingDirect
	if multiroom {
		mode = state.RoutingMultiroom
	}

	c.mu.Lock()
	snap := c.store.Snapshot()
	if snap.Transitioning {
		c.mu.Unlock()
		return errors.NewBusyError(string(mode), string(snap.TargetSource))
	}
	if snap.RoutingMode == mode {
		c.mu.Unlock()
		return nil
	}
	transitioning := true
	c.store.Apply(state.Update{Transitioning: &transitioning})
	c.mu.Unlock()

	c.pub.Publish(events.New(events.TransitionStart, map[string]any{
		"routing_mode": mode,
	}, eventSource))

	go c.executeReconfigure(state.Update{RoutingMode: &mode}, mode, snap.EqualizerEnabled)
	return nil
}

// RequestEqualizerChange toggles the software equalizer. Serializes
// against in-flight transitions like a routing change.
func (c *Coordinator) RequestEqualizerChange(_ context.Context, enabled bool) error {
	c.mu.Lock()
	snap := c.store.Snapshot()
	if snap.Transitioning {
		c.mu.Unlock()
		return errors.NewBusyError("equalizer", string(snap.TargetSource))
	}
	if snap.EqualizerEnabled == enabled {
		c.mu.Unlock()
		return nil
	}
	transitioning := true
	c.store.Apply(state.Update{Transitioning: &transitioning})
	c.mu.Unlock()

	c.pub.Publish(events.New(events.TransitionStart, map[string]any{
		"equalizer_enabled": enabled,
	}, eventSource))

	go c.executeReconfigure(state.Update{EqualizerEnabled: &enabled}, snap.RoutingMode, enabled)
	return nil
}

// executeReconfigure applies an output-chain change and commits upd on
// success. The pre-change flags stay in place on failure.
func (c *Coordinator) executeReconfigure(upd state.Update, routing state.RoutingMode, eq bool) {
	done := false
	err := c.withTimeout(func(ctx context.Context) error {
		return c.backend.ReconfigureOutput(ctx, routing, eq)
	})
	if err != nil {
		desc := &state.ErrorDescriptor{
			Code:      "BACKEND_FAILURE",
			Message:   err.Error(),
			Timestamp: time.Now(),
		}
		newSnap := c.store.Apply(state.Update{Transitioning: &done, Error: desc})
		c.logger.Error().Err(err).Msg("Output reconfiguration failed")
		c.pub.Publish(events.New(events.SystemError, map[string]any{
			"code":    desc.Code,
			"message": desc.Message,
		}, eventSource))
		c.pub.Publish(events.NewStateChanged(newSnap, eventSource))
		return
	}

	upd.Transitioning = &done
	upd.ClearError = true
	newSnap := c.store.Apply(upd)

	c.logger.Info().
		Str("routing", string(routing)).
		Bool("equalizer", eq).
		Msg("Output reconfigured")

	c.pub.Publish(events.New(events.TransitionComplete, map[string]any{
		"routing_mode":      newSnap.RoutingMode,
		"equalizer_enabled": newSnap.EqualizerEnabled,
	}, eventSource))
	c.pub.Publish(events.NewStateChanged(newSnap, eventSource))
}

// Playback forwards a transport command to the active source's daemon.
// Not subject to the transition lock.
func (c *Coordinator) Playback(ctx context.Context, cmd backends.PlaybackCommand, positionMs int64) error {
	if !cmd.Valid() {
		return errors.NewValidationError("command", cmd, "unknown playback command")
	}
	snap := c.store.Snapshot()
	if snap.ActiveSource == state.SourceNone {
		return errors.ErrNoActiveSource
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.BackendTimeout)
	defer cancel()
	return c.backend.Playback(ctx, snap.ActiveSource, cmd, positionMs)
}

// handleMetadata applies a backend metadata push and broadcasts the
// per-source delta. Metadata for inactive sources is stored too; only
// the active source's entry is authoritative for display.
func (c *Coordinator) handleMetadata(source state.Source, meta state.PlaybackMetadata) {
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = time.Now()
	}
	c.store.Apply(state.Update{
		Metadata: map[state.Source]state.PlaybackMetadata{source: meta},
	})
	c.pub.Publish(events.New(events.MetadataUpdated, map[string]any{
		"source":   source,
		"metadata": meta,
	}, string(source)))
}

// Shutdown stops the active source and resets the store. Volume is kept
// so the level survives a restart.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	snap := c.store.Snapshot()
	var err error
	if snap.ActiveSource != state.SourceNone {
		stopCtx, cancel := context.WithTimeout(ctx, c.cfg.BackendTimeout)
		defer cancel()
		err = c.backend.Stop(stopCtx, snap.ActiveSource)
	}
	newSnap := c.store.Reset()
	c.pub.Publish(events.NewStateChanged(newSnap, eventSource))
	return err
}

// withTimeout runs one backend call under the configured deadline.
func (c *Coordinator) withTimeout(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.BackendTimeout)
	defer cancel()
	return fn(ctx)
}
