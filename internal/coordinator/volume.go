package coordinator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Leshauts/milo/internal/server/events"
	"github.com/Leshauts/milo/internal/state"
	"github.com/Leshauts/milo/pkg/errors"
)

// VolumeRequest is a volume mutation. Exactly one of Absolute or Delta
// should be set; Mute toggles independently. ClientSteps is the caller's
// hint of how many slider steps one delta unit represents.
type VolumeRequest struct {
	Absolute    *int  `json:"absolute,omitempty"`
	Delta       int   `json:"delta,omitempty"`
	Mute        *bool `json:"mute,omitempty"`
	ClientSteps int   `json:"client_steps,omitempty"`
}

// RequestVolumeChange applies a volume request. It is deliberately NOT
// subject to the transition lock: volume may change during a source
// switch. The store and broadcast update immediately; the backend call
// is coalesced so a slider drag produces at most one call per interval
// plus a trailing call carrying the final value.
func (c *Coordinator) RequestVolumeChange(_ context.Context, req VolumeRequest) (state.Volume, error) {
	if req.Absolute != nil && (*req.Absolute < 0 || *req.Absolute > 100) {
		return state.Volume{}, errors.NewValidationError("absolute", *req.Absolute, "volume must be 0..100")
	}

	snap := c.store.Snapshot()
	vol := snap.Volume

	switch {
	case req.Absolute != nil:
		vol.Level = *req.Absolute
	case req.Delta != 0:
		steps := req.ClientSteps
		if steps < 1 {
			steps = 1
		}
		vol.Level += req.Delta * steps
		if vol.Level < 0 {
			vol.Level = 0
		} else if vol.Level > 100 {
			vol.Level = 100
		}
	}
	if req.Mute != nil {
		vol.Muted = *req.Mute
	}

	newSnap := c.store.Apply(state.Update{Volume: &vol})

	c.pub.Publish(events.New(events.VolumeChanged, map[string]any{
		"level": newSnap.Volume.Level,
		"muted": newSnap.Volume.Muted,
	}, eventSource))

	c.volume.submit(newSnap.Volume)
	return newSnap.Volume, nil
}

// sendVolume is the throttled backend call.
func (c *Coordinator) sendVolume(vol state.Volume) {
	err := c.withTimeout(func(ctx context.Context) error {
		return c.backend.SetVolume(ctx, vol)
	})
	if err != nil {
		c.logger.Warn().Err(err).
			Int("level", vol.Level).
			Msg("Backend volume update failed")
	}
}

// volumeThrottle coalesces a burst of volume values: the leading value
// goes out immediately (rate permitting), intermediate values overwrite
// each other, and a trailing timer guarantees the last value is sent.
// Sends are serialized: while one is in flight every new value parks in
// the pending slot, so the backend's last call always carries the
// newest value even when a send takes longer than the interval.
type volumeThrottle struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	interval  time.Duration
	pending   *state.Volume
	scheduled bool
	sending   bool
	send      func(state.Volume)
}

func newVolumeThrottle(interval time.Duration, send func(state.Volume)) *volumeThrottle {
	return &volumeThrottle{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
		send:     send,
	}
}

func (t *volumeThrottle) submit(vol state.Volume) {
	t.mu.Lock()
	if t.sending || t.scheduled || !t.limiter.Allow() {
		t.pending = &vol
		if !t.scheduled {
			t.scheduled = true
			time.AfterFunc(t.interval, t.flush)
		}
		t.mu.Unlock()
		return
	}
	t.sending = true
	t.mu.Unlock()
	t.send(vol)
	t.sendDone()
}

func (t *volumeThrottle) flush() {
	t.mu.Lock()
	t.scheduled = false
	if t.sending || t.pending == nil {
		// An in-flight send picks the pending value up when it finishes
		t.mu.Unlock()
		return
	}
	vol := *t.pending
	t.pending = nil
	t.sending = true
	t.mu.Unlock()
	t.send(vol)
	t.sendDone()
}

// sendDone releases the in-flight flag and reschedules if a newer value
// parked while the send was running.
func (t *volumeThrottle) sendDone() {
	t.mu.Lock()
	t.sending = false
	if t.pending != nil && !t.scheduled {
		t.scheduled = true
		time.AfterFunc(t.interval, t.flush)
	}
	t.mu.Unlock()
}
