package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

// TestApp_New verifies app initialization.
func TestApp_New(t *testing.T) {
	app, err := New("1.0.0", "abc123", "2026-01-01")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if app.Version() != "1.0.0" {
		t.Errorf("Version() = %s, want 1.0.0", app.Version())
	}
	if app.Commit() != "abc123" {
		t.Errorf("Commit() = %s, want abc123", app.Commit())
	}
	if app.Date() != "2026-01-01" {
		t.Errorf("Date() = %s, want 2026-01-01", app.Date())
	}
	if app.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if app.Config() == nil {
		t.Error("Config() returned nil")
	}
}

// TestApp_WithOptions tests the functional options pattern.
func TestApp_WithOptions(t *testing.T) {
	customConfig := &Config{
		Verbose:   true,
		Host:      "127.0.0.1",
		Port:      9999,
		ServerURL: "http://localhost:9999/api/v1",
	}
	customLogger := zerolog.Nop()

	app, err := New("1.0.0", "test", "2026-01-01",
		WithConfig(customConfig),
		WithLogger(&customLogger),
	)
	if err != nil {
		t.Fatalf("New() with options failed: %v", err)
	}

	if app.Config() != customConfig {
		t.Error("WithConfig() option not applied")
	}
	if app.Logger() != &customLogger {
		t.Error("WithLogger() option not applied")
	}

	host, port := app.ServerAddr()
	if host != "127.0.0.1" || port != 9999 {
		t.Errorf("ServerAddr() = %s:%d, want 127.0.0.1:9999", host, port)
	}
	if app.ServerURL() != "http://localhost:9999/api/v1" {
		t.Errorf("ServerURL() = %s", app.ServerURL())
	}
}

// TestApp_Shutdown verifies shutdown is a safe no-op.
func TestApp_Shutdown(t *testing.T) {
	app, err := New("1.0.0", "test", "2026-01-01")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
}
