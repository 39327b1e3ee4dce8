package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leshauts/milo/internal/backends"
	"github.com/Leshauts/milo/internal/server/events"
	"github.com/Leshauts/milo/internal/state"
	"github.com/Leshauts/milo/pkg/errors"
)

// fakeBackend is a scriptable Controller: per-source errors, optional
// latency, full call recording.
type fakeBackend struct {
	mu           sync.Mutex
	started      []state.Source
	stopped      []state.Source
	volumes      []state.Volume
	reconfigured []state.RoutingMode
	playback     []backends.PlaybackCommand

	startErr map[state.Source]error
	stopErr  map[state.Source]error
	reconErr error
	delay    time.Duration

	metaFn backends.MetadataFunc
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		startErr: make(map[state.Source]error),
		stopErr:  make(map[state.Source]error),
	}
}

func (f *fakeBackend) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) Start(ctx context.Context, source state.Source, _ state.RoutingMode, _ bool) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.startErr[source]; err != nil {
		return err
	}
	f.started = append(f.started, source)
	return nil
}

func (f *fakeBackend) Stop(ctx context.Context, source state.Source) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stopErr[source]; err != nil {
		return err
	}
	f.stopped = append(f.stopped, source)
	return nil
}

func (f *fakeBackend) ReconfigureOutput(ctx context.Context, routing state.RoutingMode, _ bool) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reconErr != nil {
		return f.reconErr
	}
	f.reconfigured = append(f.reconfigured, routing)
	return nil
}

func (f *fakeBackend) Playback(_ context.Context, _ state.Source, cmd backends.PlaybackCommand, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playback = append(f.playback, cmd)
	return nil
}

func (f *fakeBackend) SetVolume(_ context.Context, volume state.Volume) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, volume)
	return nil
}

func (f *fakeBackend) OnMetadata(fn backends.MetadataFunc) {
	f.metaFn = fn
}

func (f *fakeBackend) startedSources() []state.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]state.Source, len(f.started))
	copy(out, f.started)
	return out
}

func (f *fakeBackend) recordedVolumes() []state.Volume {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]state.Volume, len(f.volumes))
	copy(out, f.volumes)
	return out
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *capturePublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

func (p *capturePublisher) count(kind events.Kind) int {
	n := 0
	for _, k := range p.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func newTestCoordinator(backend backends.Controller) (*Coordinator, *capturePublisher) {
	logger := zerolog.Nop()
	pub := &capturePublisher{}
	coord := New(state.NewStore(), backend, pub, &logger, Config{
		BackendTimeout: time.Second,
		VolumeInterval: 25 * time.Millisecond,
	})
	return coord, pub
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never held: %s", msg)
}

func TestRequestSourceChange_Success(t *testing.T) {
	backend := newFakeBackend()
	coord, pub := newTestCoordinator(backend)

	err := coord.RequestSourceChange(context.Background(), state.SourceLibrespot)
	require.NoError(t, err)

	waitUntil(t, func() bool {
		snap := coord.Store().Snapshot()
		return snap.ActiveSource == state.SourceLibrespot && !snap.Transitioning
	}, "transition to librespot")

	snap := coord.Store().Snapshot()
	assert.Equal(t, state.SourceNone, snap.TargetSource)
	assert.Nil(t, snap.Error)

	assert.Equal(t, []state.Source{state.SourceLibrespot}, backend.startedSources())
	assert.Equal(t, 1, pub.count(events.TransitionStart))
	assert.Equal(t, 1, pub.count(events.TransitionComplete))
	assert.Equal(t, 1, pub.count(events.StateChanged))
}

func TestRequestSourceChange_InvalidSource(t *testing.T) {
	backend := newFakeBackend()
	coord, pub := newTestCoordinator(backend)

	err := coord.RequestSourceChange(context.Background(), state.Source("vinyl"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidSource))

	assert.Empty(t, backend.startedSources())
	assert.Empty(t, pub.kinds())
}

func TestRequestSourceChange_IdempotentNoOp(t *testing.T) {
	backend := newFakeBackend()
	coord, pub := newTestCoordinator(backend)

	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceBluetooth))
	waitUntil(t, func() bool {
		return coord.Store().Snapshot().ActiveSource == state.SourceBluetooth
	}, "initial transition")
	before := len(pub.kinds())

	// Re-activating the active source succeeds without doing anything
	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceBluetooth))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, before, len(pub.kinds()), "no events for a no-op switch")
	assert.Equal(t, []state.Source{state.SourceBluetooth}, backend.startedSources())
}

func TestRequestSourceChange_BusyRejected(t *testing.T) {
	backend := newFakeBackend()
	backend.delay = 200 * time.Millisecond
	coord, _ := newTestCoordinator(backend)

	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceLibrespot))

	waitUntil(t, func() bool {
		return coord.Store().Snapshot().Transitioning
	}, "transition accepted")

	err := coord.RequestSourceChange(context.Background(), state.SourceBluetooth)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBusy))

	var busy *errors.BusyError
	require.True(t, errors.As(err, &busy))
	assert.Equal(t, "bluetooth", busy.Requested)

	// The first transition still completes
	waitUntil(t, func() bool {
		snap := coord.Store().Snapshot()
		return snap.ActiveSource == state.SourceLibrespot && !snap.Transitioning
	}, "first transition completes")
}

func TestRequestSourceChange_StartFailureRollsBack(t *testing.T) {
	backend := newFakeBackend()
	coord, pub := newTestCoordinator(backend)

	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceLibrespot))
	waitUntil(t, func() bool {
		return coord.Store().Snapshot().ActiveSource == state.SourceLibrespot
	}, "initial transition")

	backend.mu.Lock()
	backend.startErr[state.SourceBluetooth] = errors.New("unit failed to start")
	backend.mu.Unlock()

	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceBluetooth))

	waitUntil(t, func() bool {
		snap := coord.Store().Snapshot()
		return !snap.Transitioning && snap.Error != nil
	}, "failed transition settles")

	snap := coord.Store().Snapshot()
	// The previous source was restarted and is active again
	assert.Equal(t, state.SourceLibrespot, snap.ActiveSource)
	assert.Equal(t, "BACKEND_FAILURE", snap.Error.Code)
	assert.Equal(t, state.SourceBluetooth, snap.Error.Source)

	// librespot started twice: once initially, once for rollback
	assert.Equal(t, []state.Source{state.SourceLibrespot, state.SourceLibrespot}, backend.startedSources())
	assert.Equal(t, 1, pub.count(events.SystemError))
}

func TestRequestSourceChange_StopFailureKeepsPrevious(t *testing.T) {
	backend := newFakeBackend()
	coord, _ := newTestCoordinator(backend)

	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceROC))
	waitUntil(t, func() bool {
		return coord.Store().Snapshot().ActiveSource == state.SourceROC
	}, "initial transition")

	backend.mu.Lock()
	backend.stopErr[state.SourceROC] = errors.New("unit refused to stop")
	backend.mu.Unlock()

	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceLibrespot))

	waitUntil(t, func() bool {
		snap := coord.Store().Snapshot()
		return !snap.Transitioning && snap.Error != nil
	}, "failed transition settles")

	snap := coord.Store().Snapshot()
	// Stop failed, so the old source is presumed still running
	assert.Equal(t, state.SourceROC, snap.ActiveSource)
	// The target was never started
	assert.Equal(t, []state.Source{state.SourceROC}, backend.startedSources())
}

func TestCommit_ClearsPreviousConnectionFlags(t *testing.T) {
	backend := newFakeBackend()
	coord, _ := newTestCoordinator(backend)

	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceLibrespot))
	waitUntil(t, func() bool {
		return coord.Store().Snapshot().ActiveSource == state.SourceLibrespot
	}, "initial transition")

	backend.metaFn(state.SourceLibrespot, state.PlaybackMetadata{
		Title: "Last Track", Artist: "Someone", Connected: true, Playing: true,
	})

	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceBluetooth))
	waitUntil(t, func() bool {
		return coord.Store().Snapshot().ActiveSource == state.SourceBluetooth
	}, "second transition")

	meta := coord.Store().Snapshot().Metadata[state.SourceLibrespot]
	assert.False(t, meta.Connected, "connection flag cleared on switch away")
	assert.False(t, meta.Playing)
	// Track info is kept for display until fresher data arrives
	assert.Equal(t, "Last Track", meta.Title)
}

func TestRequestRoutingModeChange(t *testing.T) {
	backend := newFakeBackend()
	coord, pub := newTestCoordinator(backend)

	require.NoError(t, coord.RequestRoutingModeChange(context.Background(), true))

	waitUntil(t, func() bool {
		snap := coord.Store().Snapshot()
		return snap.RoutingMode == state.RoutingMultiroom && !snap.Transitioning
	}, "routing change")

	backend.mu.Lock()
	recon := backend.reconfigured
	backend.mu.Unlock()
	assert.Equal(t, []state.RoutingMode{state.RoutingMultiroom}, recon)
	assert.Equal(t, 1, pub.count(events.TransitionComplete))

	// Same mode again is a no-op
	before := len(pub.kinds())
	require.NoError(t, coord.RequestRoutingModeChange(context.Background(), true))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, len(pub.kinds()))
}

func TestRequestEqualizerChange(t *testing.T) {
	backend := newFakeBackend()
	coord, _ := newTestCoordinator(backend)

	require.NoError(t, coord.RequestEqualizerChange(context.Background(), true))

	waitUntil(t, func() bool {
		snap := coord.Store().Snapshot()
		return snap.EqualizerEnabled && !snap.Transitioning
	}, "equalizer change")
}

func TestReconfigureFailure_KeepsFlags(t *testing.T) {
	backend := newFakeBackend()
	backend.reconErr = errors.New("snapserver not reachable")
	coord, pub := newTestCoordinator(backend)

	require.NoError(t, coord.RequestRoutingModeChange(context.Background(), true))

	waitUntil(t, func() bool {
		snap := coord.Store().Snapshot()
		return !snap.Transitioning && snap.Error != nil
	}, "failed reconfigure settles")

	snap := coord.Store().Snapshot()
	// The flag did not flip
	assert.Equal(t, state.RoutingDirect, snap.RoutingMode)
	assert.Equal(t, "BACKEND_FAILURE", snap.Error.Code)
	assert.Equal(t, 1, pub.count(events.SystemError))
}

func TestPlayback(t *testing.T) {
	backend := newFakeBackend()
	coord, _ := newTestCoordinator(backend)

	// No active source
	err := coord.Playback(context.Background(), backends.CommandPlay, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoActiveSource))

	// Unknown command
	err = coord.Playback(context.Background(), backends.PlaybackCommand("rewind"), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	// Forwards to the active source
	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceLibrespot))
	waitUntil(t, func() bool {
		return coord.Store().Snapshot().ActiveSource == state.SourceLibrespot
	}, "transition")

	require.NoError(t, coord.Playback(context.Background(), backends.CommandPause, 0))
	backend.mu.Lock()
	cmds := backend.playback
	backend.mu.Unlock()
	assert.Equal(t, []backends.PlaybackCommand{backends.CommandPause}, cmds)
}

func TestHandleMetadata_BroadcastsDelta(t *testing.T) {
	backend := newFakeBackend()
	coord, pub := newTestCoordinator(backend)

	backend.metaFn(state.SourceBluetooth, state.PlaybackMetadata{
		DeviceName: "Pixel", Connected: true,
	})

	snap := coord.Store().Snapshot()
	assert.Equal(t, "Pixel", snap.Metadata[state.SourceBluetooth].DeviceName)
	assert.False(t, snap.Metadata[state.SourceBluetooth].UpdatedAt.IsZero())
	assert.Equal(t, 1, pub.count(events.MetadataUpdated))
}

func TestShutdown(t *testing.T) {
	backend := newFakeBackend()
	coord, pub := newTestCoordinator(backend)

	require.NoError(t, coord.RequestSourceChange(context.Background(), state.SourceLibrespot))
	waitUntil(t, func() bool {
		return coord.Store().Snapshot().ActiveSource == state.SourceLibrespot
	}, "transition")

	require.NoError(t, coord.Shutdown(context.Background()))

	snap := coord.Store().Snapshot()
	assert.Equal(t, state.SourceNone, snap.ActiveSource)

	backend.mu.Lock()
	stopped := backend.stopped
	backend.mu.Unlock()
	assert.Contains(t, stopped, state.SourceLibrespot)
	assert.GreaterOrEqual(t, pub.count(events.StateChanged), 1)
}
