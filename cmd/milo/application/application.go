// Package application provides the application interface for milo commands.
//
// The Application interface defines the contract between the application
// layer and command implementations, enabling dependency injection and
// testability. Commands accept this interface rather than the concrete
// App type so tests can substitute mocks.
package application

import (
	"github.com/rs/zerolog"
)

// Application provides the application interface that commands need.
// The App struct from cmd/milo/app implements this interface.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// Version returns the application version string.
	Version() string

	// ServerAddr returns the bind host and port for the daemon.
	ServerAddr() (host string, port int)

	// PathPrefix returns the API path prefix, e.g. "/api/v1".
	PathPrefix() string

	// CORS returns whether CORS is enabled and the allowed origins.
	// Empty origins with CORS enabled means all origins.
	CORS() (enabled bool, origins []string)

	// BackendsFile returns the path to the backends YAML config,
	// or "" for built-in defaults.
	BackendsFile() string

	// ServerURL returns the API base URL client commands talk to.
	ServerURL() string
}

// Mock implements Application for command tests.
type Mock struct {
	LoggerFunc       func() *zerolog.Logger
	VersionFunc      func() string
	ServerAddrFunc   func() (string, int)
	PathPrefixFunc   func() string
	CORSFunc         func() (bool, []string)
	BackendsFileFunc func() string
	ServerURLFunc    func() string
}

// Logger implements Application.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// Version implements Application.
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "test"
}

// ServerAddr implements Application.
func (m *Mock) ServerAddr() (string, int) {
	if m.ServerAddrFunc != nil {
		return m.ServerAddrFunc()
	}
	return "localhost", 8080
}

// PathPrefix implements Application.
func (m *Mock) PathPrefix() string {
	if m.PathPrefixFunc != nil {
		return m.PathPrefixFunc()
	}
	return "/api/v1"
}

// CORS implements Application.
func (m *Mock) CORS() (bool, []string) {
	if m.CORSFunc != nil {
		return m.CORSFunc()
	}
	return false, nil
}

// BackendsFile implements Application.
func (m *Mock) BackendsFile() string {
	if m.BackendsFileFunc != nil {
		return m.BackendsFileFunc()
	}
	return ""
}

// ServerURL implements Application.
func (m *Mock) ServerURL() string {
	if m.ServerURLFunc != nil {
		return m.ServerURLFunc()
	}
	return "http://localhost:8080/api/v1"
}
