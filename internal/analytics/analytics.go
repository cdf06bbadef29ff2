package analytics

import (
	"sort"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

const (
	corrLookbackDays   = 63
	stressLookbackDays = 126
	stressWorstDays    = 20
	minStressDays      = 5
	minUniverseSize    = 2
)

// member is one symbol of the analytics universe tagged with the sleeve
// that selected it.
type member struct {
	symbol string
	sleeve models.Sleeve
}

// returnSeries is a symbol's daily percent changes with their dates. The
// date at index i belongs to the bar that produced return i.
type returnSeries struct {
	dates   []string
	returns []float64
}

// Analyzer computes cross-sleeve risk analytics. Every block degrades to
// nil on insufficient data instead of emitting partial matrices.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze builds the analytics block for a finished set of sleeve results.
// Returns nil when fewer than two symbols have usable history.
func (a *Analyzer) Analyze(
	results map[models.Sleeve]models.SleeveResult,
	allocation models.AllocationVector,
	history map[string][]models.Bar,
) *models.PortfolioAnalytics {
	universe := buildUniverse(results)
	if len(universe) < minUniverseSize {
		logger.Info("analytics skipped, universe too small",
			zap.Int("symbols", len(universe)))
		return nil
	}

	series := map[string]returnSeries{}
	for _, m := range universe {
		if s, ok := toReturns(history[m.symbol]); ok {
			series[m.symbol] = s
		}
	}

	out := &models.PortfolioAnalytics{
		Correlation:       a.correlation(universe, series),
		StressCorrelation: a.stressCorrelation(universe, series),
		Drawdowns:         a.drawdowns(results, allocation, series),
	}
	if out.Correlation == nil && out.StressCorrelation == nil && out.Drawdowns == nil {
		return nil
	}
	return out
}

// buildUniverse collects the union of sleeve selections in canonical
// sleeve order, alphabetical inside each sleeve. A symbol picked by two
// sleeves keeps its first tag.
func buildUniverse(results map[models.Sleeve]models.SleeveResult) []member {
	seen := map[string]bool{}
	var universe []member
	for _, sleeve := range models.AllSleeves {
		result, ok := results[sleeve]
		if !ok {
			continue
		}
		symbols := result.Symbols()
		sort.Strings(symbols)
		for _, sym := range symbols {
			if seen[sym] {
				continue
			}
			seen[sym] = true
			universe = append(universe, member{symbol: sym, sleeve: sleeve})
		}
	}
	return universe
}

// toReturns converts bars to daily percent changes. Needs at least two
// bars; zero or negative base closes invalidate the series.
func toReturns(bars []models.Bar) (returnSeries, bool) {
	if len(bars) < 2 {
		return returnSeries{}, false
	}
	s := returnSeries{
		dates:   make([]string, 0, len(bars)-1),
		returns: make([]float64, 0, len(bars)-1),
	}
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].CloseF()
		if prev <= 0 {
			return returnSeries{}, false
		}
		s.returns = append(s.returns, bars[i].CloseF()/prev-1.0)
		s.dates = append(s.dates, bars[i].Date.Format("2006-01-02"))
	}
	return s, true
}

// tail returns the last n values, or nil if the series is shorter.
func tail(values []float64, n int) []float64 {
	if len(values) < n {
		return nil
	}
	return values[len(values)-n:]
}
