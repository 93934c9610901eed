package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quotestream/internal/auth"
	"github.com/rickgao/quotestream/internal/batch"
	"github.com/rickgao/quotestream/internal/cache"
	"github.com/rickgao/quotestream/internal/config"
	"github.com/rickgao/quotestream/internal/connection"
	"github.com/rickgao/quotestream/internal/database"
	"github.com/rickgao/quotestream/internal/recorder"
	"github.com/rickgao/quotestream/internal/registry"
	"github.com/rickgao/quotestream/internal/stream"
	"github.com/rickgao/quotestream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/quotestream.local.yaml", "path to config file")
	symbols := flag.String("symbols", "", "comma-separated symbols to subscribe at startup")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting quotestream",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_host", cfg.Feed.Host,
	)

	// Create context cancelled on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Token provider: file-backed takes precedence over the static token
	var tokens auth.TokenProvider
	switch {
	case cfg.Feed.TokenFile != "":
		fp, err := auth.NewFileProvider(cfg.Feed.TokenFile, time.Minute)
		if err != nil {
			logger.Error("failed to set up token provider", "error", err)
			os.Exit(1)
		}
		tokens = fp
	case cfg.Feed.Token != "":
		tokens = auth.Static(cfg.Feed.Token)
	}

	// Persisted cache tier (optional)
	var persisted cache.Store
	if cfg.Cache.Enabled {
		redisStore, err := cache.NewRedis(ctx, cfg.Cache.Redis, cfg.Cache.TTL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		persisted = redisStore
		logger.Info("redis cache tier connected", "addr", cfg.Cache.Redis.Addr, "ttl", cfg.Cache.TTL)
	}
	quoteCache := cache.NewTiered(persisted, logger)

	// Core components
	reg := registry.New(logger)
	batcher := batch.New(batch.Config{FlushInterval: cfg.Batch.FlushInterval}, logger)
	mgr := connection.NewManager(
		connection.ManagerConfigFrom(cfg),
		tokens,
		reg,
		quoteCache,
		batcher,
		logger,
	)

	if err := batcher.Start(ctx); err != nil {
		logger.Error("failed to start batcher", "error", err)
		os.Exit(1)
	}
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	// Optional Postgres tick recorder
	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Recorder.Database.Host,
			"port", cfg.Recorder.Database.Port,
			"database", cfg.Recorder.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Recorder.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		rec = recorder.New(recorder.Config{
			BatchSize:     cfg.Recorder.BatchSize,
			FlushInterval: cfg.Recorder.FlushInterval,
		}, batcher, pool, logger)
		if err := rec.Start(ctx); err != nil {
			logger.Error("failed to start recorder", "error", err)
			os.Exit(1)
		}
	}

	// Initial consumer from the -symbols flag
	var handle *stream.Handle
	if *symbols != "" {
		handle, err = stream.NewHandle(mgr, reg, batcher, quoteCache, stream.Options{
			Symbols:     splitSymbols(*symbols),
			AutoConnect: true,
		}, logger)
		if err != nil {
			logger.Error("failed to open stream handle", "error", err)
			os.Exit(1)
		}
	}

	healthPort := 8080
	if cfg.Health.Port > 0 {
		healthPort = cfg.Health.Port
	}
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: createHealthHandler(mgr, reg, rec),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", healthPort)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	if handle != nil {
		g.Go(func() error {
			return logUpdates(gctx, handle, logger)
		})
	}

	logger.Info("quotestream running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", healthPort),
	)

	if err := g.Wait(); err != nil {
		logger.Error("component failed", "error", err)
	}

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if handle != nil {
		handle.Close()
	}
	if rec != nil {
		rec.Stop(shutdownCtx)
	}
	mgr.Stop(shutdownCtx)
	batcher.Stop(shutdownCtx)

	logger.Info("quotestream stopped")
}

// logUpdates drains a handle's update channel so the default consumer never
// stalls the batcher fan-out.
func logUpdates(ctx context.Context, h *stream.Handle, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case quotes, ok := <-h.Updates():
			if !ok {
				return nil
			}
			for _, q := range quotes {
				logger.Info("quote",
					"symbol", q.Symbol,
					"price", q.Price,
					"bid", q.Bid,
					"ask", q.Ask,
				)
			}
		}
	}
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(mgr *connection.Manager, reg *registry.Registry, rec *recorder.Recorder) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := mgr.Stats()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		health.Components["connection"] = map[string]interface{}{
			"state":               string(stats.State),
			"consumers":           stats.Consumers,
			"reconnect_scheduled": stats.ReconnectScheduled,
		}
		if stats.State != connection.StateOpen {
			health.Status = "degraded"
		}

		health.Components["registry"] = map[string]interface{}{
			"symbols": len(reg.Symbols()),
		}

		if rec != nil {
			rm := rec.Stats()
			health.Components["recorder"] = map[string]interface{}{
				"inserts":   rm.Inserts,
				"conflicts": rm.Conflicts,
				"flushes":   rm.Flushes,
				"errors":    rm.Errors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/symbols", func(w http.ResponseWriter, r *http.Request) {
		symbols := reg.Symbols()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":   len(symbols),
			"symbols": symbols,
		})
	})

	return mux
}
