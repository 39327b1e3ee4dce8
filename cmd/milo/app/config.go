package app

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from config files,
// environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool

	// Config file
	ConfigFile string

	// Server configuration (serve command)
	Host         string
	Port         int
	PathPrefix   string
	CORSEnabled  bool
	CORSOrigins  []string
	BackendsFile string

	// Client configuration (status and control commands)
	ServerURL string

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (handled by cobra)
//  2. Environment variables
//  3. .env files
//  4. Config file (~/.milo.yaml)
//  5. Defaults
func LoadConfig() (*Config, error) {
	// Load .env files before Viper env binding
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MILO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(".milo")
		}
	}

	// Missing config file is fine; defaults cover everything
	_ = viper.ReadInConfig()

	config := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		NoColor: viper.GetBool("no-color"),

		ConfigFile: viper.ConfigFileUsed(),

		Host:         viper.GetString("host"),
		Port:         viper.GetInt("port"),
		PathPrefix:   viper.GetString("path_prefix"),
		CORSEnabled:  viper.GetBool("cors_enabled"),
		CORSOrigins:  viper.GetStringSlice("cors_origins"),
		BackendsFile: viper.GetString("backends_file"),

		ServerURL: viper.GetString("server_url"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", ""),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}

	// Defaults
	if config.Host == "" {
		config.Host = "0.0.0.0"
	}
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.PathPrefix == "" {
		config.PathPrefix = "/api/v1"
	}
	if config.ServerURL == "" {
		config.ServerURL = "http://localhost:8080/api/v1"
	}

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags so
// flag values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env.
func loadEnvFiles() {
	envFiles := []string{
		".env",
		".env.local",
	}
	for _, envFile := range envFiles {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
