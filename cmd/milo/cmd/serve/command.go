// Package serve implements the milo serve command: the appliance daemon.
package serve

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Leshauts/milo/cmd/milo/application"
	"github.com/Leshauts/milo/internal/backends"
	"github.com/Leshauts/milo/internal/coordinator"
	"github.com/Leshauts/milo/internal/server"
	"github.com/Leshauts/milo/internal/state"
)

// NewCommand creates the serve command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the milo daemon",
		Long: `Start the milo daemon: the REST command API, the WebSocket and SSE
event endpoints, and the coordinator that drives the audio backends.

Every state change is broadcast to all connected observers, so any
number of UIs can stay in sync with the appliance.`,
		Example: `  # Start with defaults (0.0.0.0:8080, /api/v1)
  milo serve

  # Custom port and backends config
  milo serve --port 3000 --backends /etc/milo/backends.yaml

  # Restrict CORS to the touchscreen UI
  milo serve --cors-origins "http://milo.local"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, app)
		},
	}

	// Server configuration flags
	cmd.Flags().IntP("port", "p", 0, "Server port (default from config, 8080)")
	cmd.Flags().String("host", "", "Bind address (default from config, 0.0.0.0)")
	cmd.Flags().String("prefix", "", "API path prefix (default from config, /api/v1)")

	// CORS flags
	cmd.Flags().Bool("cors", true, "Enable CORS")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty for all)")

	// Backend flags
	cmd.Flags().String("backends", "", "Backends config file (YAML)")
	cmd.Flags().String("runner", "milo-audioctl", "Audio control shim invoked for unit and mixer operations")

	// Timeout flags
	cmd.Flags().Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("idle-timeout", 120*time.Second, "HTTP idle timeout")
	cmd.Flags().Duration("backend-timeout", 10*time.Second, "Timeout for backend start/stop operations")

	// Performance flags
	cmd.Flags().Duration("cache-ttl", 5*time.Second, "Multiroom client list cache TTL")

	return cmd
}

// runServe wires the daemon together and runs it until the context is
// cancelled or the listener fails.
func runServe(cmd *cobra.Command, _ []string, app application.Application) error {
	logger := app.Logger()

	host, port := app.ServerAddr()
	if flagHost, _ := cmd.Flags().GetString("host"); flagHost != "" {
		host = flagHost
	}
	if flagPort, _ := cmd.Flags().GetInt("port"); flagPort != 0 {
		port = flagPort
	}
	prefix := app.PathPrefix()
	if flagPrefix, _ := cmd.Flags().GetString("prefix"); flagPrefix != "" {
		prefix = flagPrefix
	}

	corsEnabled, _ := cmd.Flags().GetBool("cors")
	corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
	if len(corsOrigins) == 0 {
		_, corsOrigins = app.CORS()
	}

	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	idleTimeout, _ := cmd.Flags().GetDuration("idle-timeout")
	backendTimeout, _ := cmd.Flags().GetDuration("backend-timeout")
	cacheTTL, _ := cmd.Flags().GetDuration("cache-ttl")
	runnerCmd, _ := cmd.Flags().GetString("runner")

	// Override with environment variables
	if envHost := os.Getenv("HTTP_HOST"); envHost != "" {
		host = envHost
	}

	// Backends configuration
	backendsFile, _ := cmd.Flags().GetString("backends")
	if backendsFile == "" {
		backendsFile = app.BackendsFile()
	}
	bcfg := backends.DefaultConfig()
	if backendsFile != "" {
		loaded, err := backends.LoadConfig(backendsFile)
		if err != nil {
			return fmt.Errorf("loading backends config: %w", err)
		}
		bcfg = loaded
	}

	logger.Info().
		Str("host", host).
		Int("port", port).
		Str("prefix", prefix).
		Bool("cors", corsEnabled).
		Str("backends_config", backendsFile).
		Msg("Starting milo daemon")

	// Assemble: manager drives the audio backends, the server owns the
	// event broker and transports, the coordinator sits between them.
	manager := backends.NewManager(bcfg, backends.ExecRunner{Command: runnerCmd}, logger)

	srv := server.New(manager, logger, server.Config{
		Host:        host,
		Port:        port,
		PathPrefix:  prefix,
		CORSEnabled: corsEnabled,
		CORSOrigins: corsOrigins,
		CacheTTL:    cacheTTL,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	})

	coord := coordinator.New(state.NewStore(), manager, srv.Broker(), logger, coordinator.Config{
		BackendTimeout: backendTimeout,
	})
	srv.SetCoordinator(coord)
	srv.Start()

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		Handler:     srv.Handler(),
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
		// WriteTimeout stays zero: it would kill WebSocket and SSE streams
	}

	return runUntilShutdown(cmd.Context(), httpServer, coord, srv, logger)
}

// runUntilShutdown runs the HTTP server until the context is cancelled,
// then drains connections and tears the backends down.
func runUntilShutdown(ctx context.Context, httpServer *http.Server, coord *coordinator.Coordinator, srv *server.Server, logger *zerolog.Logger) error {
	serverErr := make(chan error, 1)

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Order matters: stop accepting requests first, then the active
	// source, then the event machinery.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := coord.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Backend teardown failed")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Background services shutdown failed")
	}

	logger.Info().Msg("Daemon stopped")
	return nil
}
