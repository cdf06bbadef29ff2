package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/ai"
	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/internal/adapters/exchange"
	"github.com/apershukov/allocator/internal/adapters/history"
	"github.com/apershukov/allocator/internal/adapters/marketdata"
	"github.com/apershukov/allocator/internal/adapters/telegram"
	"github.com/apershukov/allocator/internal/adapters/tradingview"
	"github.com/apershukov/allocator/internal/allocation"
	"github.com/apershukov/allocator/internal/pipeline"
	"github.com/apershukov/allocator/internal/sleeves"
	"github.com/apershukov/allocator/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("daily allocator starting")

	// The allocation table is static; refuse to run if it does not hold
	// its invariants.
	if err := allocation.ValidateTable(); err != nil {
		return fmt.Errorf("allocation table invalid: %w", err)
	}

	market, closeMarket, err := initMarketData(cfg)
	if err != nil {
		return err
	}
	defer closeMarket()

	deps := pipeline.Deps{
		Market:    market,
		Log:       history.NewLog(cfg.History.LogPath),
		Archive:   initArchive(cfg),
		Notify:    initNotifier(cfg),
		Providers: initAIProviders(cfg),
	}

	engine := pipeline.NewEngine(cfg, deps)

	decision, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(decision.Changes.Summary)

	return nil
}

func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

func initMarketData(cfg *config.Config) (*marketdata.Service, func(), error) {
	db, err := marketdata.Connect(&cfg.MarketData.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to bar cache: %w", err)
	}

	if err := marketdata.RunMigrations(db.Conn(), cfg.MarketData.MigrationsPath); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	primary := tradingview.NewClient(&cfg.MarketData.TradingView)

	var crypto marketdata.Provider
	var cryptoSymbols []string
	if cfg.MarketData.Binance.Enabled {
		binance, err := exchange.NewBinanceProvider(&cfg.MarketData.Binance)
		if err != nil {
			logger.Warn("Binance provider unavailable, crypto symbols use the primary feed", zap.Error(err))
		} else {
			crypto = binance
			cryptoSymbols = sleeves.CryptoDefinition().Symbols()
		}
	}

	repo := marketdata.NewRepository(db.DB())
	service := marketdata.NewService(repo, primary, crypto, cryptoSymbols, &cfg.MarketData)

	return service, func() { db.Close() }, nil
}

func initArchive(cfg *config.Config) pipeline.Archiver {
	if cfg.History.ClickHouseDSN == "" {
		return nil
	}

	archive, err := history.NewArchive(cfg.History.ClickHouseDSN)
	if err != nil {
		logger.Warn("ClickHouse archive unavailable, JSONL log only", zap.Error(err))
		return nil
	}
	return archive
}

func initNotifier(cfg *config.Config) pipeline.Notifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Warn("telegram notifier unavailable", zap.Error(err))
		return nil
	}
	return notifier
}

func initAIProviders(cfg *config.Config) []ai.Provider {
	return []ai.Provider{
		ai.NewClaudeProvider(&cfg.AI.Claude),
		ai.NewOpenAIProvider(&cfg.AI.OpenAI),
	}
}
