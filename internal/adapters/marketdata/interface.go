package marketdata

import (
	"context"

	"github.com/apershukov/allocator/pkg/models"
)

// Provider fetches daily OHLC history from an upstream data source.
type Provider interface {
	// GetHistory returns up to limit daily bars for symbol, oldest first.
	GetHistory(ctx context.Context, symbol string, limit int) ([]models.Bar, error)

	// Name identifies the provider in logs and cache rows.
	Name() string
}
