package backends

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Leshauts/milo/internal/backends/librespot"
	"github.com/Leshauts/milo/internal/backends/snapcast"
	"github.com/Leshauts/milo/internal/state"
	"github.com/Leshauts/milo/pkg/errors"
)

// Manager implements Controller against the appliance's real daemons:
// service units through a Runner, the snapcast multiroom server through
// its JSON-RPC port, and go-librespot through its REST API.
type Manager struct {
	cfg       Config
	runner    Runner
	snapcast  *snapcast.Client
	librespot *librespot.Client
	logger    *zerolog.Logger

	mu      sync.Mutex
	running map[state.Source]string // source -> unit started for it
	routing state.RoutingMode
	eq      bool

	metaMu sync.RWMutex
	metaFn MetadataFunc
}

// NewManager creates a manager for the given backend layout.
func NewManager(cfg Config, runner Runner, logger *zerolog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		runner:  runner,
		logger:  logger,
		running: make(map[state.Source]string),
		routing: state.RoutingDirect,
	}
	if cfg.Multiroom.RPCAddr != "" {
		m.snapcast = snapcast.New(cfg.Multiroom.RPCAddr)
	}
	if sc, ok := cfg.Sources[state.SourceLibrespot]; ok && sc.APIAddr != "" {
		m.librespot = librespot.New(sc.APIAddr)
	}
	return m
}

// Snapcast exposes the multiroom RPC client for status surfaces.
func (m *Manager) Snapcast() *snapcast.Client {
	return m.snapcast
}

// Start implements Controller.
func (m *Manager) Start(ctx context.Context, source state.Source, routing state.RoutingMode, equalizer bool) error {
	sc, ok := m.cfg.Sources[source]
	if !ok {
		return errors.NewSourceError(string(source))
	}

	unit := sc.Unit
	if routing == state.RoutingMultiroom && sc.MultiroomUnit != "" {
		unit = sc.MultiroomUnit
	}

	m.logger.Info().
		Str("source", string(source)).
		Str("unit", unit).
		Str("routing", string(routing)).
		Bool("equalizer", equalizer).
		Msg("Starting source backend")

	if err := m.runner.Run(ctx, "start", unit); err != nil {
		return errors.WrapBackend(string(source), "start", err)
	}

	m.mu.Lock()
	m.running[source] = unit
	m.routing = routing
	m.eq = equalizer
	m.mu.Unlock()

	// Librespot reports now-playing state over its API; seed the
	// metadata map as soon as the daemon is reachable. The Start context
	// is canceled when the transition commits, so the seed runs detached
	// with its own deadline.
	if source == state.SourceLibrespot && m.librespot != nil {
		go m.seedLibrespotMetadata()
	}
	return nil
}

// Stop implements Controller.
func (m *Manager) Stop(ctx context.Context, source state.Source) error {
	sc, ok := m.cfg.Sources[source]
	if !ok {
		return errors.NewSourceError(string(source))
	}

	m.mu.Lock()
	unit, started := m.running[source]
	m.mu.Unlock()
	if !started {
		unit = sc.Unit
	}

	m.logger.Info().
		Str("source", string(source)).
		Str("unit", unit).
		Msg("Stopping source backend")

	if err := m.runner.Run(ctx, "stop", unit); err != nil {
		return errors.WrapBackend(string(source), "stop", err)
	}

	m.mu.Lock()
	delete(m.running, source)
	m.mu.Unlock()
	return nil
}

// ReconfigureOutput implements Controller. Switching the routing mode
// brackets the snapcast pair up or down and restarts whatever source
// pipeline is currently running so its output re-points.
func (m *Manager) ReconfigureOutput(ctx context.Context, routing state.RoutingMode, equalizer bool) error {
	m.mu.Lock()
	prevRouting := m.routing
	active := make([]state.Source, 0, len(m.running))
	for src := range m.running {
		active = append(active, src)
	}
	m.mu.Unlock()

	if routing == state.RoutingMultiroom && prevRouting != state.RoutingMultiroom {
		if err := m.runner.Run(ctx, "start", m.cfg.Multiroom.ServerUnit); err != nil {
			return errors.WrapBackend("snapcast", "start", err)
		}
		if err := m.runner.Run(ctx, "start", m.cfg.Multiroom.ClientUnit); err != nil {
			return errors.WrapBackend("snapcast", "start", err)
		}
	}

	// Restart running pipelines against the new output chain.
	for _, src := range active {
		if err := m.Stop(ctx, src); err != nil {
			return err
		}
		if err := m.Start(ctx, src, routing, equalizer); err != nil {
			return err
		}
	}

	if routing == state.RoutingDirect && prevRouting == state.RoutingMultiroom {
		if err := m.runner.Run(ctx, "stop", m.cfg.Multiroom.ClientUnit); err != nil {
			return errors.WrapBackend("snapcast", "stop", err)
		}
		if err := m.runner.Run(ctx, "stop", m.cfg.Multiroom.ServerUnit); err != nil {
			return errors.WrapBackend("snapcast", "stop", err)
		}
	}

	m.mu.Lock()
	m.routing = routing
	m.eq = equalizer
	m.mu.Unlock()
	return nil
}

// Playback implements Controller. Commands go to the daemon that can
// honor them: librespot over REST, bluetooth through the host's player
// control intent. The ROC receiver has no transport controls.
func (m *Manager) Playback(ctx context.Context, source state.Source, cmd PlaybackCommand, positionMs int64) error {
	switch source {
	case state.SourceLibrespot:
		if m.librespot == nil {
			return errors.NewBackendError("librespot", string(cmd), errors.ErrNotConnected)
		}
		switch cmd {
		case CommandPlay:
			return m.librespot.Play(ctx)
		case CommandPause:
			return m.librespot.Pause(ctx)
		case CommandNext:
			return m.librespot.Next(ctx)
		case CommandPrevious:
			return m.librespot.Previous(ctx)
		case CommandSeek:
			return m.librespot.Seek(ctx, positionMs)
		}
		return errors.NewValidationError("command", cmd, "unknown playback command")

	case state.SourceBluetooth:
		if cmd == CommandSeek {
			return errors.NewValidationError("command", cmd, "bluetooth sink does not support seek")
		}
		if err := m.runner.Run(ctx, "playback", string(source), string(cmd)); err != nil {
			return errors.WrapBackend(string(source), string(cmd), err)
		}
		return nil

	case state.SourceROC:
		return errors.NewValidationError("command", cmd, "network audio receiver has no transport controls")
	}
	return errors.NewSourceError(string(source))
}

// SetVolume implements Controller. In multiroom mode the volume fans out
// to every snapcast client; in direct mode it adjusts the local mixer.
func (m *Manager) SetVolume(ctx context.Context, volume state.Volume) error {
	m.mu.Lock()
	routing := m.routing
	m.mu.Unlock()

	if routing == state.RoutingMultiroom && m.snapcast != nil {
		if err := m.snapcast.SetAllVolumes(ctx, volume.Level, volume.Muted); err != nil {
			return errors.WrapBackend("snapcast", "set_volume", err)
		}
		return nil
	}

	muted := "off"
	if volume.Muted {
		muted = "on"
	}
	if err := m.runner.Run(ctx, "volume", m.cfg.Volume.Mixer, strconv.Itoa(volume.Level)+"%", muted); err != nil {
		return errors.WrapBackend("mixer", "set_volume", err)
	}
	return nil
}

// OnMetadata implements Controller.
func (m *Manager) OnMetadata(fn MetadataFunc) {
	m.metaMu.Lock()
	m.metaFn = fn
	m.metaMu.Unlock()
}

// PushMetadata delivers an inbound metadata update from a source daemon.
// The HTTP surface exposes this for daemons that push over a webhook.
func (m *Manager) PushMetadata(source state.Source, meta state.PlaybackMetadata) {
	m.metaMu.RLock()
	fn := m.metaFn
	m.metaMu.RUnlock()
	if fn != nil {
		fn(source, meta)
	}
}

func (m *Manager) seedLibrespotMetadata() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	meta, err := m.librespot.Status(ctx)
	if err != nil {
		m.logger.Debug().Err(err).Msg("Librespot status not available yet")
		return
	}
	m.PushMetadata(state.SourceLibrespot, meta)
}

// ExecRunner runs start/stop intents through the host shim binary. The
// shim owns the privilege boundary; unit management stays out of core.
type ExecRunner struct {
	// Command is the shim invoked with (verb, args...).
	Command string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmdArgs := append([]string{name}, args...)
	cmd := exec.CommandContext(ctx, r.Command, cmdArgs...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w (output: %s)", r.Command, cmdArgs, err, out)
	}
	return nil
}
