package server

import "time"

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix string

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// Performance settings
	CacheTTL time.Duration

	// HTTP timeouts. WriteTimeout must stay zero: it would sever the
	// long-lived WebSocket and SSE connections.
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults for the
// appliance: bound to all interfaces because the touchscreen process
// and remote browsers connect over the LAN.
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        8080,
		PathPrefix:  "/api/v1",
		CORSEnabled: true,
		CORSOrigins: []string{},
		CacheTTL:    5 * time.Second,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
}
