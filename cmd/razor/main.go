// Razor — a read-only observation and shadow-accounting pipeline for
// Polymarket multi-leg prediction markets.
//
// Architecture:
//
//	main.go                 — entry point: loads config, starts the engine, waits for SIGINT/SIGTERM
//	internal/engine         — orchestrator: wires feed → brain → shadow → health, owns the run directory
//	internal/feed           — WebSocket book/price_change subscriber + HTTP trade poller, no order placement
//	internal/brain          — net-edge signal gate: sum-of-asks cost, liquidity bucket, signal emission
//	internal/shadow         — pending-signal settlement: matched-set + residual-dump PnL, never touches the live book
//	internal/tradestore     — bounded, time-ordered trade history queried by Shadow
//	internal/health         — liveness event log + periodic heartbeat
//	internal/report         — aggregates the finished shadow log into report.json / report.md
//	internal/recorder       — append-only CSV/JSONL writers backing every run-directory file
//	internal/runctx         — run-directory creation and path anchoring
//
// Razor never places an order, cancels an order, or holds exchange
// credentials — it only observes public market data and records what a
// configured strategy would have done.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"razor/internal/config"
	"razor/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("RAZOR_CONFIG"); p != "" {
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	eng.Start(ctx)
	logger.Info("razor started", "markets", cfg.Run.MarketIDs)

	<-ctx.Done()
	logger.Info("received shutdown signal")
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
