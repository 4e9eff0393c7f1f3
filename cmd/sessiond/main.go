// Sessiond is the session data interchange daemon.
//
// The binary starts the HTTP API with full service initialization: the
// session store (memory or Postgres), the optional NATS event publisher,
// OpenTelemetry, and the interchange service behind /save_and_load.
//
// Configuration is loaded from an optional YAML file plus SESSIOND_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (in-memory store on :9090)
//	sessiond
//
//	# Start with a config file
//	sessiond --config /etc/sessiond/config.yaml
//
//	# Configure via environment
//	SESSIOND_SERVER_PORT=8080 SESSIOND_STORE_PROVIDER=postgres sessiond
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hinteval/sessiond/internal/config"
	"github.com/hinteval/sessiond/internal/events"
	"github.com/hinteval/sessiond/internal/httpapi"
	"github.com/hinteval/sessiond/internal/interchange"
	"github.com/hinteval/sessiond/internal/logging"
	"github.com/hinteval/sessiond/internal/sessionstore"
	"github.com/hinteval/sessiond/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "show version information and exit")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// Handle subcommands
	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  sessiond           Start the sessiond daemon\n")
			fmt.Fprintf(os.Stderr, "  sessiond version   Show version information\n")
			os.Exit(1)
		}
	}

	// A .env in the working directory is a development convenience;
	// a missing file is not an error.
	_ = godotenv.Load()

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("sessiond\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the sessiond server and blocks until context is cancelled.
//
// Initialization order:
//  1. Loads and validates configuration
//  2. Initializes telemetry and the structured logger
//  3. Opens the session store (memory or Postgres)
//  4. Connects the event publisher when events are enabled
//  5. Creates the interchange service and the HTTP server
//  6. Performs graceful shutdown in reverse order on cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Telemetry first: the logger's OTEL sink needs the provider. A
	// misconfigured exporter degrades instead of failing startup.
	tel, err := telemetry.New(ctx, telemetry.FromDaemonConfig(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromDaemonConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logging config: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	// Telemetry flushes after everything that emits spans has stopped.
	// Shutdown falls back to the configured timeout when the context
	// carries no deadline.
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
		}
	}()

	logger.Info(ctx, "starting sessiond",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("store_provider", cfg.Store.Provider),
		zap.Bool("events_enabled", cfg.Events.Enabled),
		zap.Bool("telemetry_enabled", tel.IsEnabled()))

	store, err := sessionstore.NewStore(ctx, cfg.Store, logger.Underlying())
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn(context.Background(), "failed to close session store", zap.Error(err))
		}
	}()

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Enabled {
		publisher, err = events.Connect(&events.Config{
			URL:           cfg.Events.URL,
			SubjectPrefix: cfg.Events.SubjectPrefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect event publisher: %w", err)
		}
		logger.Info(ctx, "event publisher connected", zap.String("url", cfg.Events.URL))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn(context.Background(), "failed to close event publisher", zap.Error(err))
		}
	}()

	svc, err := interchange.NewService(
		&interchange.ServiceConfig{MaxUploadBytes: cfg.Import.MaxUploadBytes},
		store, publisher, logger)
	if err != nil {
		return fmt.Errorf("failed to create interchange service: %w", err)
	}
	defer func() {
		_ = svc.Close()
	}()

	srv, err := httpapi.NewServer(&httpapi.Config{
		Addr:           cfg.Server.Addr(),
		ReadTimeout:    cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:   cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:    cfg.Server.IdleTimeout.Duration(),
		MaxUploadBytes: cfg.Import.MaxUploadBytes,
		RateLimit:      cfg.Import.RateLimit,
		RateBurst:      cfg.Import.RateBurst,
		Version:        version,
		StoreProvider:  cfg.Store.Provider,
		EventsEnabled:  cfg.Events.Enabled,
	}, svc, store, tel, logger)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	logger.Info(ctx, "sessiond ready",
		zap.String("health_endpoint", fmt.Sprintf("http://%s/health", cfg.Server.Addr())),
		zap.String("api_prefix", "/save_and_load"),
		zap.String("metrics_endpoint", "/metrics"))

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		logger.Info(context.Background(), "shutting down",
			zap.Duration("timeout", cfg.Server.ShutdownTimeout.Duration()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "http server shutdown failed", zap.Error(err))
		}
		if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn(shutdownCtx, "http server exited with error", zap.Error(err))
		}
		return nil
	}
}
