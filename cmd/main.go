// Command pricewatch runs the price-triggered automation engine. It polls
// asset prices from the configured platform (Binance, Bybit, Hyperliquid or a
// built-in simulator), evaluates automation rules on every significant price
// change and dispatches scheduled payments when they come due.
//
// Usage:
//
//	pricewatch --config config.yaml
//	pricewatch (uses CLI arguments)
//
// Optional environment variables:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
//
// Public market data endpoints work without credentials.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/config"
	"github.com/vadiminshakov/pricewatch/internal/domain"
	"github.com/vadiminshakov/pricewatch/internal/events"
	"github.com/vadiminshakov/pricewatch/internal/services/coordinator"
	"github.com/vadiminshakov/pricewatch/internal/services/engine"
	"github.com/vadiminshakov/pricewatch/internal/services/executor"
	"github.com/vadiminshakov/pricewatch/internal/services/pricer"
	"github.com/vadiminshakov/pricewatch/internal/services/scheduler"
	"github.com/vadiminshakov/pricewatch/internal/services/stats"
	"github.com/vadiminshakov/pricewatch/internal/services/watcher"
	"github.com/vadiminshakov/pricewatch/internal/storage/executions"
	"github.com/vadiminshakov/pricewatch/internal/storage/schedules"
)

const hyperliquidMainnetURL = "https://api.hyperliquid.xyz"

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	simExecutor := executor.NewSimulateExecutor(logger)

	source, err := buildPriceSource(cfg)
	if err != nil {
		logger.Fatal("failed to build price source", zap.Error(err))
	}

	statsStore := stats.NewStore(logger, cfg.MaxHistory)
	for _, asset := range cfg.Assets {
		statsStore.RegisterAsset(asset)
	}

	journal, err := executions.NewWALStore(cfg.WalDir)
	if err != nil {
		logger.Fatal("failed to open execution journal", zap.Error(err))
	}
	defer journal.Close()

	eng, err := engine.New(logger, statsStore, source, simExecutor, journal)
	if err != nil {
		logger.Fatal("failed to build rule engine", zap.Error(err))
	}

	broadcaster := events.NewPriceBroadcaster(64)
	w := watcher.New(logger, source, statsStore, broadcaster, cfg.PollInterval, cfg.ChangeThreshold)
	sched := scheduler.New(logger, cfg.SchedulerInterval)
	scheduleStore := schedules.NewMemoryStore()

	onDue := func(ctx context.Context, a domain.ScheduledAutomation) (domain.ExecutionResult, error) {
		return simExecutor.ExecuteTransfer(ctx, a, "USDC", decimal.NewFromInt(10))
	}

	assetCodes := make([]domain.AssetCode, 0, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		assetCodes = append(assetCodes, asset.Code)
	}

	coord := coordinator.New(logger, w, sched, eng, scheduleStore, broadcaster, onDue, assetCodes)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		logger.Fatal("failed to start coordinator", zap.Error(err))
	}

	logger.Info("pricewatch started",
		zap.String("platform", cfg.Platform),
		zap.Int("assets", len(cfg.Assets)))

	<-ctx.Done()
	coord.Stop()
}

func buildPriceSource(cfg config.Config) (pricer.PriceSource, error) {
	switch cfg.Platform {
	case "binance":
		apiKey := os.Getenv("BINANCE_API_KEY")
		apiSecret := os.Getenv("BINANCE_API_SECRET")
		return pricer.NewBinancePricer(binance.NewClient(apiKey, apiSecret)), nil
	case "bybit":
		client := bybit.NewClient()
		apiKey := os.Getenv("BYBIT_API_KEY")
		apiSecret := os.Getenv("BYBIT_API_SECRET")
		if apiKey != "" && apiSecret != "" {
			client = client.WithAuth(apiKey, apiSecret)
		}
		return pricer.NewBybitPricer(client), nil
	case "hyperliquid":
		info := hyperliquid.NewInfo(context.Background(), hyperliquidMainnetURL, true, nil, nil)
		return pricer.NewHyperliquidPricer(info), nil
	case "simulate":
		// fixed synthetic prices; rules can still be exercised end to end
		static := pricer.NewStaticPricer()
		for _, asset := range cfg.Assets {
			static.SetPrice(asset.Code, decimal.NewFromInt(100))
		}
		return static, nil
	default:
		return nil, errors.Errorf("unsupported platform: %s", cfg.Platform)
	}
}
