// Package main provides the entry point for webpilot.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/webpilot/webpilot-go/internal/actions"
	"github.com/webpilot/webpilot-go/internal/backend"
	"github.com/webpilot/webpilot-go/internal/config"
	"github.com/webpilot/webpilot-go/internal/dashboard"
	"github.com/webpilot/webpilot-go/internal/extract"
	"github.com/webpilot/webpilot-go/internal/handlers"
	"github.com/webpilot/webpilot-go/internal/metrics"
	"github.com/webpilot/webpilot-go/internal/middleware"
	"github.com/webpilot/webpilot-go/internal/pool"
	"github.com/webpilot/webpilot-go/internal/selector"
	"github.com/webpilot/webpilot-go/internal/store"
	"github.com/webpilot/webpilot-go/pkg/version"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logging first so validation warnings are visible
	setupLogging(cfg.LogLevel, cfg.LogPretty)

	// "webpilot dashboard [url]" attaches a terminal view to a running instance
	if len(os.Args) > 1 && os.Args[1] == "dashboard" {
		baseURL := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
		if len(os.Args) > 2 {
			baseURL = os.Args[2]
		}
		if err := dashboard.Run(baseURL); err != nil {
			log.Fatal().Err(err).Msg("Dashboard failed")
		}
		return
	}

	// Validate configuration bounds
	cfg.Validate()

	// Print banner
	printBanner()

	// The browser backend launches lazily on first session, so construction
	// never fails here even without Chrome installed.
	chrome := backend.NewChrome(cfg)

	// Session pool over the shared backend
	sessions := pool.New(cfg, chrome)

	// Selector policy (embedded defaults, optionally merged with an
	// external file and hot-reloaded)
	policy, err := selector.NewManager(cfg.SelectorPolicyPath, cfg.SelectorPolicyHotReload)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load selector policy")
	}

	// Content extraction engine and page operations
	engine := extract.NewEngine(cfg, policy)
	ops := actions.New(cfg, sessions, engine)

	// Bookmark and credential store
	st, err := store.Open(cfg.DataFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DataFile).Msg("Failed to open data store")
	}

	// Create handler
	handler := handlers.New(cfg, ops, sessions, st)

	// Build middleware chain
	var finalHandler http.Handler = handler.Routes()

	// Apply middleware (in reverse order - last applied runs first)
	// 1. Recovery (outermost - catches panics from everything)
	// 2. Logging (logs all requests)
	// 3. Rate limiting (if enabled)
	// 4. API key auth (if enabled)
	// 5. CORS + security headers (handle preflight)

	finalHandler = middleware.SecurityHeaders(finalHandler)
	finalHandler = middleware.CORS(cfg.CORSAllowedOrigins)(finalHandler)

	if cfg.APIKeyEnabled {
		finalHandler = middleware.APIKey(cfg)(finalHandler)
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitEnabled {
		log.Info().
			Int("requests_per_minute", cfg.RateLimitRPM).
			Bool("trust_proxy", cfg.TrustProxyHeaders).
			Msg("Rate limiting enabled")
		limiter = middleware.NewRateLimiter(cfg.RateLimitRPM, time.Minute, cfg.TrustProxyHeaders)
		finalHandler = limiter.Handler()(finalHandler)
	}

	finalHandler = middleware.Logging(finalHandler)
	finalHandler = middleware.Recovery(finalHandler)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      finalHandler,
		ReadTimeout:  cfg.MaxTimeout + 10*time.Second,
		WriteTimeout: cfg.MaxTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel to signal shutdown to background tasks
	stopCh := make(chan struct{})

	// Start metrics server if enabled
	var metricsServer *http.Server
	if cfg.PrometheusEnabled {
		// Set build info
		metrics.SetBuildInfo(version.Full(), version.GoVersion())

		// Count browser process losses
		chrome.OnDisconnect(metrics.BackendDisconnects.Inc)

		// Start runtime collector
		go metrics.StartRuntimeCollector(10*time.Second, stopCh)

		// Create metrics server
		metricsAddr := fmt.Sprintf(":%d", cfg.PrometheusPort)
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())

		metricsServer = &http.Server{
			Addr:         metricsAddr,
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		go func() {
			log.Info().
				Int("port", cfg.PrometheusPort).
				Msg("Prometheus metrics server started")

			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	// Start main server in goroutine
	go func() {
		log.Info().
			Str("address", addr).
			Int("max_sessions", cfg.MaxSessions).
			Bool("metrics_enabled", cfg.PrometheusEnabled).
			Bool("rate_limit_enabled", cfg.RateLimitEnabled).
			Msg("webpilot is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Signal background tasks to stop
	close(stopCh)

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown main server
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	// Shutdown metrics server if running
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown error")
		}
	}

	// Stop rate limiter cleanup if running
	if limiter != nil {
		limiter.Close()
	}

	// Close sessions before the backend so pages shut down cleanly
	if err := sessions.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Session pool shutdown error")
	}

	// Close browser backend
	if err := chrome.Close(); err != nil {
		log.Error().Err(err).Msg("Browser backend close error")
	}

	// Stop selector policy watcher
	if err := policy.Close(); err != nil {
		log.Error().Err(err).Msg("Selector policy close error")
	}

	log.Info().Msg("Shutdown complete")
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string, pretty bool) {
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printBanner prints the startup banner.
func printBanner() {
	banner := `
__        __   _     ____  _ _       _
\ \      / /__| |__ |  _ \(_) | ___ | |_
 \ \ /\ / / _ \ '_ \| |_) | | |/ _ \| __|
  \ V  V /  __/ |_) |  __/| | | (_) | |_
   \_/\_/ \___|_.__/|_|   |_|_|\___/ \__|
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting webpilot")
}
