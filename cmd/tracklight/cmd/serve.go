package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracklight/tracklight/internal/config"
	"github.com/tracklight/tracklight/internal/server"
	"github.com/tracklight/tracklight/internal/watcher"
	"github.com/tracklight/tracklight/pkg/constants"
	"github.com/tracklight/tracklight/pkg/logging"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the event hub",
		Long: `Start the tracklight event hub server.

Endpoints:
  - WebSocket duplex channel at /api/v1/events/live
  - SSE stream with resume support at /api/v1/events/stream
  - HTTP producer boundary at POST /api/v1/events
  - Hub statistics at /api/v1/events/stats

Configuration comes from flags, an optional YAML config file, and the
environment (HEARTBEAT_INTERVAL_SECONDS, QUEUE_CAPACITY_PER_CONNECTION,
REPLAY_BUFFER_SIZE_PER_PROJECT, ...). Environment values win.`,
		Example: `  # Start on the default port 8080
  tracklight serve

  # Custom port with authentication and CORS
  tracklight serve --port 3000 --auth --cors

  # Publish file_change events for a working tree
  tracklight serve --watch ./projects/acme`,
		RunE: runServe,
	}

	cmd.Flags().StringP("config", "c", "", "Path to YAML config file")
	cmd.Flags().IntP("port", "p", 0, "Server port (overrides config)")
	cmd.Flags().String("host", "", "Bind address (overrides config)")
	cmd.Flags().Bool("cors", false, "Enable CORS")
	cmd.Flags().StringSlice("cors-origins", nil, "Allowed CORS origins")
	cmd.Flags().Bool("auth", false, "Enable API key authentication")
	cmd.Flags().Int("rate-limit", -1, "Requests per minute per IP (0 to disable)")
	cmd.Flags().StringSlice("watch", nil, "Paths for the built-in file-change producer")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := logging.Default()

	configPath, _ := cmd.Flags().GetString("config")
	cfg, watchPaths, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flags override file and environment.
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Host = host
	}
	if on, _ := cmd.Flags().GetBool("cors"); on {
		cfg.CORSEnabled = true
	}
	if origins, _ := cmd.Flags().GetStringSlice("cors-origins"); len(origins) > 0 {
		cfg.CORSEnabled = true
		cfg.CORSOrigins = origins
	}
	if on, _ := cmd.Flags().GetBool("auth"); on {
		cfg.AuthEnabled = true
	}
	if rl, _ := cmd.Flags().GetInt("rate-limit"); rl >= 0 {
		cfg.RateLimit = rl
	}
	if paths, _ := cmd.Flags().GetStringSlice("watch"); len(paths) > 0 {
		watchPaths = paths
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("prefix", cfg.PathPrefix).
		Bool("auth", cfg.AuthEnabled).
		Bool("cors", cfg.CORSEnabled).
		Int("rate_limit", cfg.RateLimit).
		Msg("Starting event hub server")

	hub := server.New(cfg, logger)
	hub.Start()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if len(watchPaths) > 0 {
		w := watcher.New(hub.Bus(), watchPaths, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("File watcher stopped")
			}
		}()
	}

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     hub.Handler(),
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
		// No WriteTimeout: stream responses stay open indefinitely and the
		// hub bounds individual writes itself.
	}

	return serveWithGracefulShutdown(httpServer, hub)
}

// serveWithGracefulShutdown runs the HTTP server until SIGINT/SIGTERM,
// then drains requests and closes hub connections.
func serveWithGracefulShutdown(httpServer *http.Server, hub *server.Server) error {
	logger := logging.Default()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	// Close hub connections first so long-lived streams release their
	// handlers, then drain the HTTP server.
	if err := hub.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Hub shutdown incomplete")
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("Server stopped")
	return nil
}
