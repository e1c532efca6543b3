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
	"github.com/spf13/pflag"

	"github.com/freewebtopdf/redirector/internal/config"

	docs "github.com/freewebtopdf/redirector/docs"
)

// @title Redirector API
// @version 1.0
// @description URL redirect resolution service with chain handling, loop protection and content move tracking

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /
// @schemes http https

// @tag.name Resolution
// @tag.description Not-found URL resolution

// @tag.name Rules
// @tag.description Redirect rule management

// @tag.name Content
// @tag.description Content save hooks that maintain redirects for moved items

// @tag.name Analytics
// @tag.description Not-found request statistics

// @tag.name System
// @tag.description System health and metrics operations

func main() {
	healthCheck := pflag.Bool("health-check", false, "Perform health check and exit")
	pflag.Parse()

	if *healthCheck {
		performHealthCheck()
		return
	}

	setupLogger()

	log.Info().Msg("Redirector starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create required directories")
	}

	docs.SwaggerInfo.Host = os.Getenv("DOMAIN")

	logStartupConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}

	if cfg.Redirects.ImportDir != "" {
		result, err := app.seed(ctx, cfg.Redirects.ImportDir)
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.Redirects.ImportDir).Msg("Redirect import skipped")
		} else {
			log.Info().
				Str("dir", cfg.Redirects.ImportDir).
				Int("created", result.Created).
				Int("skipped", result.Skipped).
				Int("failed", len(result.Failed)).
				Msg("Redirect files imported")
		}
	}

	app.start(ctx)

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("addr", serverAddr).
			Msg("Starting HTTP server")
		serveErr <- app.router.App.Listen(serverAddr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal, initiating graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		os.Exit(1)
	}
	log.Info().Msg("Graceful shutdown completed")
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339

	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if os.Getenv("LOG_FORMAT") == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func logStartupConfig(cfg *config.Config) {
	log.Info().
		Int("server_port", cfg.Server.Port).
		Dur("server_read_timeout", cfg.Server.ReadTimeout).
		Dur("server_write_timeout", cfg.Server.WriteTimeout).
		Int("server_body_limit", cfg.Server.BodyLimit).
		Str("storage_driver", cfg.Storage.Driver).
		Str("cache_driver", cfg.Cache.Driver).
		Int("cache_max_size", cfg.Cache.MaxSize).
		Dur("cache_ttl", cfg.Cache.TTL).
		Bool("redirects_preserve_query", cfg.Redirects.PreserveQueryString).
		Int("redirects_exclude_patterns", len(cfg.Redirects.ExcludePatterns)).
		Bool("lifecycle_enabled", cfg.Lifecycle.Enabled).
		Dur("lifecycle_undo_window", cfg.Lifecycle.UndoWindow).
		Bool("analytics_enabled", cfg.Analytics.Enabled).
		Bool("analytics_hash_ips", cfg.Analytics.HashIPs).
		Strs("security_cors_origins", cfg.Security.CORSOrigins).
		Bool("security_enable_https", cfg.Security.EnableHTTPS).
		Int("security_rate_limit", cfg.Security.RateLimit).
		Str("logging_level", cfg.Logging.Level).
		Str("logging_format", cfg.Logging.Format).
		Msg("Configuration loaded successfully")
}

func performHealthCheck() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{
		Timeout: 3 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
