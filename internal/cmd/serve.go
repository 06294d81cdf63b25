package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/licitalens/licitalens/internal/config"
	"github.com/licitalens/licitalens/internal/core/backend"
	"github.com/licitalens/licitalens/internal/core/engine"
	"github.com/licitalens/licitalens/internal/core/ratelimit"
	"github.com/licitalens/licitalens/internal/core/relay"
	errwrap "github.com/licitalens/licitalens/internal/errors"
	"github.com/licitalens/licitalens/internal/observability"
	"github.com/licitalens/licitalens/internal/server"
	"github.com/licitalens/licitalens/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// backendConfigChecker reports whether the backend endpoints are configured.
// An unconfigured backend degrades the affected routes but is not fatal.
type backendConfigChecker struct {
	cfg config.BackendConfig
}

func (b backendConfigChecker) CheckHealth(ctx context.Context) error {
	if b.cfg.BaseURL == "" && b.cfg.StreamURL == "" {
		return errwrap.NewConfigInvalidError("no backend endpoints configured")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	Long: `Start the gateway HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (placeholder - restart recommended)

The server will cleanly shut down the HTTP server and flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.GetConfig()

		// Initialize server logger
		observability.InitServerLogger(appName, cfg.Logging.Level)

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}

		if err := observability.InitMetrics(appName, metricsPort); err != nil {
			observability.ServerLogger.Error("Failed to initialize metrics",
				zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}

		host := serverHost
		if !cmd.Flags().Changed("host") && cfg.Server.Host != "" {
			host = cfg.Server.Host
		}
		port := serverPort
		if !cmd.Flags().Changed("port") && cfg.Server.Port != 0 {
			port = cfg.Server.Port
		}

		observability.ServerLogger.Info("Initializing gateway",
			zap.String("service", appName),
			zap.String("version", versionInfo.Version),
			zap.String("host", host),
			zap.Int("port", port),
			zap.Int("metrics_port", metricsPort),
			zap.String("backend", cfg.Backend.BaseURL),
			zap.String("stream_target", cfg.Backend.StreamURL))

		// Gateway components
		backendClient := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout)
		streamRelay := relay.New(cfg.Backend.StreamURL, cfg.Stream.IdleTimeout)
		coordinator := engine.New(backendClient)

		loginLimiter := limiterForPolicy(cfg, "login")
		registerLimiter := limiterForPolicy(cfg, "register")

		// Sweepers run until shutdown cancels them.
		sweepCtx, stopSweepers := context.WithCancel(context.Background())
		for _, limiter := range []*ratelimit.Limiter{loginLimiter, registerLimiter} {
			if limiter != nil {
				limiter.StartSweeper(sweepCtx, cfg.RateLimit.SweepInterval)
			}
		}

		// Health manager
		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		hm.RegisterChecker("backend_config", backendConfigChecker{cfg: cfg.Backend})

		srv := server.New(host, port, server.Deps{
			Relay:           streamRelay,
			Coordinator:     coordinator,
			Backend:         backendClient,
			LoginLimiter:    loginLimiter,
			RegisterLimiter: registerLimiter,
			Health:          hm,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 15 * time.Second
		}

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		// Handler 1: Flush logger (executed last)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		// Handler 2: Stop limiter sweepers
		signals.OnShutdown(func(ctx context.Context) error {
			stopSweepers()
			return nil
		})

		// Handler 3: Shutdown HTTP server (executed first)
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// Register config reload handler (SIGHUP)
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if _, err := config.Load(cfgFile); err != nil {
				observability.ServerLogger.Error("Failed to reload configuration",
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			observability.ServerLogger.Info("Configuration reloaded successfully")

			// Rate-limit policies and backend endpoints take effect on
			// restart; reload currently refreshes logging-level style knobs.
			return nil
		})

		// Enable double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		// Start server in background goroutine
		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", host),
				zap.Int("port", port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		// Start signal listener in background
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		// Wait for error or shutdown completion
		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

// limiterForPolicy builds a limiter from the named config policy. A missing
// policy disables the guard for that operation.
func limiterForPolicy(cfg *config.Config, name string) *ratelimit.Limiter {
	policy, ok := cfg.RateLimit.Policy(name)
	if !ok {
		observability.ServerLogger.Warn("No rate limit policy configured, operation unguarded",
			zap.String("operation", name))
		return nil
	}
	return ratelimit.New(policy.Limit, policy.Window)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "0.0.0.0", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
