package ai

import (
	"context"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// Provider asks an external model for an independent regime read.
type Provider interface {
	// Analyze sends the market snapshot and returns the parsed opinion.
	Analyze(ctx context.Context, snapshot string, ruleRegime models.RegimeColor) (*models.Opinion, error)

	// Name returns provider name
	Name() string

	// Enabled returns whether provider is configured and enabled
	Enabled() bool
}

// SecondOpinion runs the first enabled provider. The stage is advisory and
// never fails the run: any error degrades to a skipped opinion.
func SecondOpinion(ctx context.Context, providers []Provider, snapshot string, ruleRegime models.RegimeColor) *models.Opinion {
	for _, p := range providers {
		if !p.Enabled() {
			continue
		}

		opinion, err := p.Analyze(ctx, snapshot, ruleRegime)
		if err != nil {
			logger.Warn("second opinion failed",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			return &models.Opinion{
				Skipped:  true,
				Reason:   err.Error(),
				Provider: p.Name(),
			}
		}

		opinion.Provider = p.Name()
		opinion.Snapshot = snapshot
		return opinion
	}

	return &models.Opinion{Skipped: true, Reason: "no enabled provider"}
}
