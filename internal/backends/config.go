package backends

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/Leshauts/milo/internal/state"
	"github.com/Leshauts/milo/pkg/errors"
)

// SourceConfig describes how one audio source's daemon is controlled.
type SourceConfig struct {
	// Unit is the service unit handed to the Runner for start/stop.
	Unit string `yaml:"unit"`

	// MultiroomUnit replaces Unit while multiroom routing is active
	// (the daemon variant that outputs to the multiroom bus).
	MultiroomUnit string `yaml:"multiroom_unit,omitempty"`

	// APIAddr is the daemon's local control endpoint, when it has one
	// (go-librespot exposes a REST API; bluetooth and roc do not).
	APIAddr string `yaml:"api_addr,omitempty"`
}

// Config describes every backend daemon the manager talks to. It is a
// data file (not app config), so it is parsed with go-yaml rather than
// riding on viper.
type Config struct {
	Sources map[state.Source]SourceConfig `yaml:"sources"`

	Multiroom struct {
		// ServerUnit and ClientUnit bracket the snapcast pair.
		ServerUnit string `yaml:"server_unit"`
		ClientUnit string `yaml:"client_unit"`
		// RPCAddr is the snapcast JSON-RPC endpoint (host:port).
		RPCAddr string `yaml:"rpc_addr"`
	} `yaml:"multiroom"`

	Equalizer struct {
		// Device is the ALSA equalizer control device name.
		Device string `yaml:"device"`
	} `yaml:"equalizer"`

	Volume struct {
		// Mixer is the ALSA mixer control adjusted in direct mode.
		Mixer string `yaml:"mixer"`
	} `yaml:"volume"`
}

// DefaultConfig returns the stock appliance layout.
func DefaultConfig() Config {
	cfg := Config{
		Sources: map[state.Source]SourceConfig{
			state.SourceLibrespot: {
				Unit:          "milo-go-librespot.service",
				MultiroomUnit: "milo-go-librespot-multiroom.service",
				APIAddr:       "localhost:3678",
			},
			state.SourceBluetooth: {
				Unit:          "milo-bluealsa-aplay.service",
				MultiroomUnit: "milo-bluealsa-aplay-multiroom.service",
			},
			state.SourceROC: {
				Unit:          "milo-roc-recv.service",
				MultiroomUnit: "milo-roc-recv-multiroom.service",
			},
		},
	}
	cfg.Multiroom.ServerUnit = "milo-snapserver.service"
	cfg.Multiroom.ClientUnit = "milo-snapclient.service"
	cfg.Multiroom.RPCAddr = "localhost:1705"
	cfg.Equalizer.Device = "equal"
	cfg.Volume.Mixer = "Digital"
	return cfg
}

// LoadConfig reads a backend layout file, falling back to defaults for
// sources the file omits.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WrapValidation("backends config", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for _, src := range state.Sources() {
		sc, ok := c.Sources[src]
		if !ok {
			return errors.NewValidationError("sources", src, "missing source "+string(src))
		}
		if sc.Unit == "" {
			return errors.NewValidationError("sources."+string(src)+".unit", sc.Unit, "unit is required")
		}
	}
	if c.Multiroom.RPCAddr == "" {
		return errors.NewValidationError("multiroom.rpc_addr", "", "snapcast RPC address is required")
	}
	return nil
}
