package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// barStore is the cache surface the service needs. Satisfied by *Repository.
type barStore interface {
	SaveBars(ctx context.Context, source string, bars []models.Bar) error
	GetBars(ctx context.Context, symbol string, limit int) ([]models.Bar, error)
	LastFetched(ctx context.Context, symbol string) (time.Time, error)
}

// Service loads daily history through the bar cache. Fresh cache rows are
// served directly; everything else goes to the symbol's provider and is
// written through. Provider failures degrade to whatever the cache holds.
type Service struct {
	store         barStore
	primary       Provider
	crypto        Provider
	cryptoSymbols map[string]struct{}
	freshness     time.Duration
	historyBars   int
	forceRefresh  bool
}

// NewService creates a market data service. The crypto provider may be nil,
// in which case crypto symbols route to the primary provider.
func NewService(store barStore, primary, crypto Provider, cryptoSymbols []string, cfg *config.MarketDataConfig) *Service {
	set := make(map[string]struct{}, len(cryptoSymbols))
	for _, s := range cryptoSymbols {
		set[s] = struct{}{}
	}

	return &Service{
		store:         store,
		primary:       primary,
		crypto:        crypto,
		cryptoSymbols: set,
		freshness:     time.Duration(cfg.FreshnessHours) * time.Hour,
		historyBars:   cfg.HistoryBars,
		forceRefresh:  cfg.ForceRefresh,
	}
}

// Load fetches history for every symbol. It never fails the whole batch: a
// symbol with no usable data is simply absent from the result, and every
// degradation is reported as a warning.
func (s *Service) Load(ctx context.Context, symbols []string) (map[string][]models.Bar, []string) {
	history := make(map[string][]models.Bar, len(symbols))
	var warnings []string

	for _, symbol := range symbols {
		bars, warning := s.loadSymbol(ctx, symbol)
		if warning != "" {
			warnings = append(warnings, warning)
		}
		if len(bars) > 0 {
			history[symbol] = bars
		}
	}

	logger.Info("market data loaded",
		zap.Int("requested", len(symbols)),
		zap.Int("loaded", len(history)),
		zap.Int("warnings", len(warnings)),
	)

	return history, warnings
}

func (s *Service) loadSymbol(ctx context.Context, symbol string) ([]models.Bar, string) {
	if !s.forceRefresh {
		fetched, err := s.store.LastFetched(ctx, symbol)
		if err != nil {
			logger.Warn("cache freshness check failed", zap.String("symbol", symbol), zap.Error(err))
		} else if !fetched.IsZero() && time.Since(fetched) < s.freshness {
			bars, err := s.store.GetBars(ctx, symbol, s.historyBars)
			if err == nil && len(bars) > 0 {
				return sortBars(bars), ""
			}
			if err != nil {
				logger.Warn("cache read failed", zap.String("symbol", symbol), zap.Error(err))
			}
		}
	}

	provider := s.providerFor(symbol)
	bars, err := provider.GetHistory(ctx, symbol, s.historyBars)
	if err == nil && len(bars) > 0 {
		bars = sortBars(bars)
		if saveErr := s.store.SaveBars(ctx, provider.Name(), bars); saveErr != nil {
			logger.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(saveErr))
		}
		return bars, ""
	}
	if err != nil {
		logger.Warn("provider fetch failed",
			zap.String("symbol", symbol),
			zap.String("provider", provider.Name()),
			zap.Error(err),
		)
	}

	// Fetch failed: serve whatever the cache still holds.
	cached, cacheErr := s.store.GetBars(ctx, symbol, s.historyBars)
	if cacheErr == nil && len(cached) > 0 {
		return sortBars(cached), fmt.Sprintf("STALE INPUT: %s fetch failed, using cached history", symbol)
	}

	return nil, fmt.Sprintf("NO DATA: %s unavailable from %s and cache is empty", symbol, provider.Name())
}

func (s *Service) providerFor(symbol string) Provider {
	if s.crypto != nil {
		if _, ok := s.cryptoSymbols[symbol]; ok {
			return s.crypto
		}
	}
	return s.primary
}

// Providers occasionally deliver out-of-order bars; downstream math assumes
// chronological order.
func sortBars(bars []models.Bar) []models.Bar {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return bars
}
