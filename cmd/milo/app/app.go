// Package app provides the application context and dependency management
// for the milo CLI. It centralizes configuration, logging, and lifecycle
// management for the daemon and client commands.
package app

import (
	"context"

	"github.com/rs/zerolog"
)

// App represents the milo application with its shared dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string

	// Configuration
	config *Config

	// Logger
	logger *zerolog.Logger
}

// New creates a new App instance with the given version information.
func New(version, commit, date string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version string.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// ServerAddr returns the bind host and port for the daemon.
func (a *App) ServerAddr() (string, int) {
	return a.config.Host, a.config.Port
}

// PathPrefix returns the API path prefix.
func (a *App) PathPrefix() string {
	return a.config.PathPrefix
}

// CORS returns whether CORS is enabled and the allowed origins.
func (a *App) CORS() (bool, []string) {
	return a.config.CORSEnabled, a.config.CORSOrigins
}

// BackendsFile returns the path to the backends YAML config.
func (a *App) BackendsFile() string {
	return a.config.BackendsFile
}

// ServerURL returns the API base URL client commands talk to.
func (a *App) ServerURL() string {
	return a.config.ServerURL
}

// Shutdown performs graceful shutdown of the application. The serve
// command tears its own server down; nothing app-global holds
// resources, so this only exists to give main a single hook.
func (a *App) Shutdown(_ context.Context) error {
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}
