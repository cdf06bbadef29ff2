package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// BinanceProvider serves daily OHLCV for crypto symbols through CCXT.
type BinanceProvider struct {
	exchange *ccxt.Binance
}

// NewBinanceProvider creates a Binance daily-bar provider. Public OHLCV
// endpoints work without credentials.
func NewBinanceProvider(cfg *config.BinanceConfig) (*BinanceProvider, error) {
	options := map[string]interface{}{
		"apiKey": cfg.APIKey,
		"secret": cfg.Secret,
	}

	exchange := ccxt.NewBinance(options)
	exchange.Options.Store("defaultType", "spot")
	exchange.Options.Store("adjustForTimeDifference", true)

	if _, err := exchange.LoadMarkets(); err != nil {
		return nil, fmt.Errorf("failed to load Binance markets: %w", err)
	}

	logger.Info("Binance provider initialized",
		zap.Int("markets_count", len(exchange.GetMarketsList())),
	)

	return &BinanceProvider{exchange: exchange}, nil
}

// Name identifies this provider in logs and cache rows.
func (b *BinanceProvider) Name() string {
	return "binance"
}

// GetHistory returns up to limit daily bars for symbol, oldest first.
// Bare tickers are quoted against USDT.
func (b *BinanceProvider) GetHistory(ctx context.Context, symbol string, limit int) ([]models.Bar, error) {
	market := symbol
	if !strings.Contains(market, "/") {
		market = market + "/USDT"
	}

	ohlcv, err := b.exchange.FetchOHLCV(
		market,
		ccxt.WithFetchOHLCVTimeframe("1d"),
		ccxt.WithFetchOHLCVLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OHLCV for %s: %w", market, err)
	}

	bars := make([]models.Bar, 0, len(ohlcv))
	for _, row := range ohlcv {
		bars = append(bars, models.Bar{
			Symbol: symbol,
			Date:   time.UnixMilli(row.Timestamp).UTC().Truncate(24 * time.Hour),
			Open:   models.NewDecimal(row.Open),
			High:   models.NewDecimal(row.High),
			Low:    models.NewDecimal(row.Low),
			Close:  models.NewDecimal(row.Close),
			Volume: models.NewDecimal(row.Volume),
		})
	}

	return bars, nil
}
