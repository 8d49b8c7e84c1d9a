// Command arbengine runs the cross-venue arbitrage execution engine: it
// watches a CEX perpetual and a DEX perpetual for the same instrument,
// opens a DEX-maker/CEX-taker hedge when the fee-adjusted spread clears
// a threshold, and unwinds it the same way in reverse.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts the engine, waits for SIGINT/SIGTERM
//	internal/engine            — Supervisor: wires every component, owns the process lifecycle
//	internal/priceboard        — shared venue tickers and fee-adjusted spread calculation
//	internal/venue             — CEX/DEX REST+WS adapters behind one Client interface
//	internal/normalizer        — reduces venue-native order events to a closed vocabulary
//	internal/strategy          — the state machine and its 1 Hz timeout sweep
//	internal/reconcile         — startup position reconciliation
//	internal/telemetry         — Prometheus metrics
//	internal/api               — /healthz and /metrics HTTP surface
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"arbengine/internal/api"
	"arbengine/internal/config"
	"arbengine/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("ARB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
		logger.Info("api server started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	logger.Info("arbengine started", "cex_symbol", cfg.CEX.Symbol, "dex_symbol", cfg.DEX.Symbol, "dry_run", cfg.DryRun)

	<-ctx.Done()
	logger.Info("received shutdown signal")

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop api server", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
