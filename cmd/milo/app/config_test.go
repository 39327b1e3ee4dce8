package app

import (
	"os"
	"testing"
)

// TestLoadConfig verifies basic config loading and defaults.
func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if config == nil {
		t.Fatal("LoadConfig() returned nil config")
	}

	// Verify defaults are set
	if config.Host == "" {
		t.Error("Host not set to default")
	}
	if config.Port == 0 {
		t.Error("Port not set to default")
	}
	if config.PathPrefix != "/api/v1" {
		t.Errorf("PathPrefix = %s, want /api/v1", config.PathPrefix)
	}
	if config.ServerURL == "" {
		t.Error("ServerURL not set to default")
	}
	if config.LogFormat == "" {
		t.Error("LogFormat not set to default")
	}
}

// TestConfig_EnvironmentVariables verifies environment variable loading.
func TestConfig_EnvironmentVariables(t *testing.T) {
	// Save original env
	oldHost := os.Getenv("MILO_HOST")
	oldPort := os.Getenv("MILO_PORT")
	defer func() {
		os.Setenv("MILO_HOST", oldHost)
		os.Setenv("MILO_PORT", oldPort)
	}()

	os.Setenv("MILO_HOST", "127.0.0.1")
	os.Setenv("MILO_PORT", "9090")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", config.Host)
	}
	if config.Port != 9090 {
		t.Errorf("Port = %d, want 9090", config.Port)
	}
}

// TestConfig_LoggingOptions verifies logging configuration.
func TestConfig_LoggingOptions(t *testing.T) {
	oldLevel := os.Getenv("LOG_LEVEL")
	oldFormat := os.Getenv("LOG_FORMAT")
	oldOutput := os.Getenv("LOG_OUTPUT")
	defer func() {
		os.Setenv("LOG_LEVEL", oldLevel)
		os.Setenv("LOG_FORMAT", oldFormat)
		os.Setenv("LOG_OUTPUT", oldOutput)
	}()

	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "json")
	os.Setenv("LOG_OUTPUT", "stdout")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", config.LogLevel)
	}
	if config.LogFormat != "json" {
		t.Errorf("LogFormat = %s, want json", config.LogFormat)
	}
	if config.LogOutput != "stdout" {
		t.Errorf("LogOutput = %s, want stdout", config.LogOutput)
	}
}

// TestConfig_ServerURL verifies client endpoint configuration.
func TestConfig_ServerURL(t *testing.T) {
	old := os.Getenv("MILO_SERVER_URL")
	defer os.Setenv("MILO_SERVER_URL", old)

	os.Setenv("MILO_SERVER_URL", "http://milo.local:8080/api/v1")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.ServerURL != "http://milo.local:8080/api/v1" {
		t.Errorf("ServerURL = %s, want http://milo.local:8080/api/v1", config.ServerURL)
	}
}

// TestConfig_UpdateFromFlags verifies flag precedence over env and file.
func TestConfig_UpdateFromFlags(t *testing.T) {
	config := &Config{LogLevel: "info"}

	config.UpdateFromFlags(true, false, true, "error")

	if !config.Verbose {
		t.Error("Verbose flag not applied")
	}
	if !config.NoColor {
		t.Error("NoColor flag not applied")
	}
	if config.LogLevel != "error" {
		t.Errorf("LogLevel = %s, want error", config.LogLevel)
	}

	// An empty log-level flag leaves the configured value alone
	config.UpdateFromFlags(false, true, false, "")
	if config.LogLevel != "error" {
		t.Errorf("LogLevel = %s, want error (unchanged)", config.LogLevel)
	}
	if !config.Quiet {
		t.Error("Quiet flag not applied")
	}
}
