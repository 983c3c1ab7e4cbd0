// Command coinpilot runs the automated spot trading service: a websocket
// price feed, a daily backtest scan and a one-second control loop, fronted
// by an HTTP dashboard.
//
// Usage:
//
//	coinpilot --config config.yaml
//	coinpilot (uses built-in defaults)
//
// Required environment variables:
//
//	BINANCE_API_KEY, BINANCE_API_SECRET
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"coinpilot/config"
	"coinpilot/internal/clients"
	"coinpilot/internal/services/backtest"
	"coinpilot/internal/services/candlecache"
	"coinpilot/internal/services/feed"
	"coinpilot/internal/services/manager"
	"coinpilot/internal/services/market"
	"coinpilot/internal/services/reconciler"
	"coinpilot/internal/services/strategy"
	"coinpilot/internal/services/trader"
	"coinpilot/internal/storage/ledger"
	"coinpilot/internal/storage/snapshots"
	"coinpilot/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		logger.Fatal("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := clients.NewBinanceClient(apiKey, apiSecret)
	source := market.NewBinanceSource(client)

	store, err := ledger.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open ledger", zap.Error(err))
	}
	defer store.Close()

	snapshotStore, err := snapshots.NewWALStore(cfg.WALDir)
	if err != nil {
		logger.Fatal("failed to open snapshot store", zap.Error(err))
	}
	defer snapshotStore.Close()

	table := feed.NewPriceTable()
	priceFeed := feed.New(table, cfg.Quote, logger)

	scorer := strategy.New()

	scanner, err := backtest.New(source, scorer, cfg.Quote, cfg.CacheDir, store, logger)
	if err != nil {
		logger.Fatal("failed to init backtest engine", zap.Error(err))
	}

	cache := candlecache.New(source, table, logger)
	execution := trader.NewBinanceTrader(client)
	rec := reconciler.New(store, cfg.Quote, cfg.MinImportValue, logger)

	loop := manager.New(manager.Config{
		Quote:             cfg.Quote,
		MaxPositions:      cfg.MaxPositions,
		MinOrder:          cfg.MinOrder,
		TurnoverThreshold: cfg.TurnoverThreshold,
		ProfitTarget:      cfg.ProfitTarget,
		StopLoss:          cfg.StopLoss,
		BuyCooldown:       cfg.BuyCooldown,
		DailyCron:         cfg.DailyCron,
	}, execution, source, cache, scanner, store, rec, table, snapshotStore, scorer, logger)

	server := web.NewServer(cfg.WebAddr, loop, snapshotStore, scanner, table, logger)

	go priceFeed.Run(ctx)

	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("web server stopped", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("coinpilot started",
		zap.String("quote", cfg.Quote),
		zap.String("web_addr", cfg.WebAddr))

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("control loop failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
