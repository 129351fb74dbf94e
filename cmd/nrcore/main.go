package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/neurorail/core/pkg/api"
	"github.com/neurorail/core/pkg/audit"
	"github.com/neurorail/core/pkg/cache"
	"github.com/neurorail/core/pkg/config"
	"github.com/neurorail/core/pkg/events"
	"github.com/neurorail/core/pkg/governor"
	"github.com/neurorail/core/pkg/identity"
	"github.com/neurorail/core/pkg/lifecycle"
	"github.com/neurorail/core/pkg/store"
	"github.com/neurorail/core/pkg/telemetry"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the dispatcher entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	cmd := "server"
	if len(args) > 1 {
		cmd = args[1]
	}

	switch cmd {
	case "server", "serve":
		return runServer(stderr)
	case "migrate":
		return runMigrate(stdout, stderr)
	case "health":
		return runHealth(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: nrcore [command]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  server    start the trace core API server (default)")
	fmt.Fprintln(w, "  migrate   apply durable store migrations and exit")
	fmt.Fprintln(w, "  health    probe a running server's /healthz endpoint")
	fmt.Fprintln(w, "  help      show this message")
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func runServer(stderr io.Writer) int {
	cfg := config.Load()
	logger := setupLogger(cfg.LogLevel)

	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Migrate(ctx); err != nil {
		fmt.Fprintf(stderr, "migrate store: %v\n", err)
		return 1
	}

	// Redis is optional. Without it the hot cache degrades to in-process
	// memory and audit fan-out is disabled; the durable store stays
	// authoritative either way.
	var (
		hotCache  cache.Cache = cache.NewMemoryCache()
		publisher events.Publisher
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rc := cache.NewRedisCacheWithClient(client)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, using in-memory cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			hotCache = rc
			publisher = events.NewRedisPublisher(client, cfg.AuditChannel)
		}
	}

	metricsHandler, shutdownMetrics, err := telemetry.SetupMetrics("nrcore")
	if err != nil {
		fmt.Fprintf(stderr, "setup metrics: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	aggregator, err := telemetry.NewAggregator(otel.Meter("nrcore"), s, cfg.ErrorWindow)
	if err != nil {
		fmt.Fprintf(stderr, "setup telemetry: %v\n", err)
		return 1
	}

	engine := lifecycle.NewEngine(s, hotCache, cfg.CacheTTL, aggregator)
	registry := identity.New(s, hotCache, engine, cfg.CacheTTL)
	log := audit.NewLog(s, publisher, cfg.ErrorWindow)

	rules := governor.DefaultRules()
	if cfg.GovernorRulesFile != "" {
		rules, err = governor.LoadRulesFile(cfg.GovernorRulesFile)
		if err != nil {
			fmt.Fprintf(stderr, "load governor rules: %v\n", err)
			return 1
		}
	}
	gov, err := governor.New(rules, s)
	if err != nil {
		fmt.Fprintf(stderr, "setup governor: %v\n", err)
		return 1
	}

	server := api.NewServer(api.Config{
		Registry:  registry,
		Lifecycle: engine,
		Audit:     log,
		Telemetry: aggregator,
		Governor:  gov,
		Store:     s,
		Metrics:   metricsHandler,
	})
	defer server.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(cfg.RateLimitRPS, cfg.RateLimitBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "rules", len(rules))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(stderr, "server: %v\n", err)
			return 1
		}
	}
	return 0
}

func runMigrate(stdout, stderr io.Writer) int {
	cfg := config.Load()
	setupLogger(cfg.LogLevel)

	s, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Migrate(ctx); err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "migrations applied")
	return 0
}

func runHealth(stdout, stderr io.Writer) int {
	cfg := config.Load()
	url := "http://localhost:" + cfg.Port + "/healthz"

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(stderr, "health probe failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "unhealthy: %s\n", resp.Status)
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}
