// Package backends defines the outbound interface to the OS-level audio
// daemons (source receivers, multiroom server, equalizer) and the manager
// that implements it. The core never manages the daemons themselves; it
// issues start/stop/reconfigure intents and receives metadata back.
package backends

import (
	"context"

	"github.com/Leshauts/milo/internal/state"
)

// PlaybackCommand is a per-source transport command forwarded to the
// active source's daemon. These do not go through the transition lock.
type PlaybackCommand string

// Supported playback commands.
const (
	CommandPlay     PlaybackCommand = "play"
	CommandPause    PlaybackCommand = "pause"
	CommandNext     PlaybackCommand = "next"
	CommandPrevious PlaybackCommand = "previous"
	CommandSeek     PlaybackCommand = "seek"
)

// Valid reports whether c is a known playback command.
func (c PlaybackCommand) Valid() bool {
	switch c {
	case CommandPlay, CommandPause, CommandNext, CommandPrevious, CommandSeek:
		return true
	}
	return false
}

// MetadataFunc receives metadata pushed by a source daemon.
type MetadataFunc func(source state.Source, meta state.PlaybackMetadata)

// Controller is the collaborator interface the coordinator drives.
// All calls must honor the context deadline; expiry is a failure.
type Controller interface {
	// Start brings up the pipeline for source with the given output
	// routing. The previous source must already be stopped.
	Start(ctx context.Context, source state.Source, routing state.RoutingMode, equalizer bool) error

	// Stop tears down the pipeline for source.
	Stop(ctx context.Context, source state.Source) error

	// ReconfigureOutput re-points the output chain (direct/multiroom,
	// equalizer on/off). May restart the active source's pipeline.
	ReconfigureOutput(ctx context.Context, routing state.RoutingMode, equalizer bool) error

	// Playback forwards a transport command to the source's daemon.
	// positionMs is only meaningful for CommandSeek.
	Playback(ctx context.Context, source state.Source, cmd PlaybackCommand, positionMs int64) error

	// SetVolume applies the system volume to the output chain.
	SetVolume(ctx context.Context, volume state.Volume) error

	// OnMetadata registers the callback invoked when a source daemon
	// pushes now-playing or connection info.
	OnMetadata(fn MetadataFunc)
}

// Runner executes a start/stop intent against the host's service layer.
// The real implementation shells out; tests substitute fakes. Unit
// management itself (systemd files, installation) is out of scope.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}
