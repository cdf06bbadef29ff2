package analytics

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// correlation builds the Pearson matrix over the trailing correlation
// window. Symbols without enough history drop out; fewer than two
// survivors omit the block.
func (a *Analyzer) correlation(universe []member, series map[string]returnSeries) *models.CorrelationMatrix {
	kept, columns := alignTail(universe, series, corrLookbackDays)
	if len(kept) < minUniverseSize {
		return nil
	}

	matrix := pearsonMatrix(columns)
	out := &models.CorrelationMatrix{
		LookbackDays: corrLookbackDays,
		Matrix:       matrix,
	}
	for _, m := range kept {
		out.Symbols = append(out.Symbols, m.symbol)
		out.SleeveLabels = append(out.SleeveLabels, m.sleeve)
	}
	return out
}

// stressCorrelation recomputes the matrix restricted to the worst days of
// an equal-weighted synthetic portfolio over the stress window.
func (a *Analyzer) stressCorrelation(universe []member, series map[string]returnSeries) *models.StressCorrelation {
	kept, columns := alignTail(universe, series, stressLookbackDays)
	if len(kept) < minUniverseSize {
		return nil
	}

	// Synthetic equal-weight portfolio return per day.
	portfolioDates := tailDates(series[kept[0].symbol], stressLookbackDays)
	type day struct {
		idx int
		ret float64
	}
	days := make([]day, stressLookbackDays)
	for i := 0; i < stressLookbackDays; i++ {
		sum := 0.0
		for _, col := range columns {
			sum += col[i]
		}
		days[i] = day{idx: i, ret: sum / float64(len(columns))}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].ret < days[j].ret })

	n := stressWorstDays
	if n > len(days) {
		n = len(days)
	}
	worst := days[:n]
	if len(worst) < minStressDays {
		logger.Info("stress correlation skipped, too few stress days",
			zap.Int("days", len(worst)))
		return nil
	}

	// Restrict every column to the worst-day indices.
	stressed := make([][]float64, len(columns))
	for c, col := range columns {
		stressed[c] = make([]float64, len(worst))
		for i, d := range worst {
			stressed[c][i] = col[d.idx]
		}
	}

	out := &models.StressCorrelation{
		CorrelationMatrix: models.CorrelationMatrix{
			LookbackDays: stressLookbackDays,
			Matrix:       pearsonMatrix(stressed),
		},
		NWorstDays:      len(worst),
		ThresholdReturn: worst[len(worst)-1].ret,
	}
	for _, m := range kept {
		out.Symbols = append(out.Symbols, m.symbol)
		out.SleeveLabels = append(out.SleeveLabels, m.sleeve)
	}

	// Per-day decomposition, worst first.
	for _, d := range worst {
		wd := models.WorstDay{
			Date:            portfolioDates[d.idx],
			PortfolioReturn: d.ret,
			Returns:         map[string]float64{},
		}
		for c, m := range kept {
			wd.Returns[m.symbol] = columns[c][d.idx]
		}
		out.WorstDays = append(out.WorstDays, wd)
	}
	return out
}

// alignTail keeps the universe members with at least n trailing returns
// and returns their aligned tail columns in universe order.
func alignTail(universe []member, series map[string]returnSeries, n int) ([]member, [][]float64) {
	var kept []member
	var columns [][]float64
	for _, m := range universe {
		s, ok := series[m.symbol]
		if !ok {
			continue
		}
		col := tail(s.returns, n)
		if col == nil {
			logger.Debug("symbol dropped from analytics window",
				zap.String("symbol", m.symbol), zap.Int("want_days", n))
			continue
		}
		kept = append(kept, m)
		columns = append(columns, col)
	}
	return kept, columns
}

func tailDates(s returnSeries, n int) []string {
	return s.dates[len(s.dates)-n:]
}

// pearsonMatrix computes pairwise Pearson correlation with non-finite
// cells zeroed.
func pearsonMatrix(columns [][]float64) [][]float64 {
	n := len(columns)
	matrix := make([][]float64, n)
	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			r := pearson(columns[i], columns[j])
			if math.IsNaN(r) || math.IsInf(r, 0) {
				r = 0
			}
			matrix[i][j] = r
		}
	}
	return matrix
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 || len(x) != len(y) {
		return math.NaN()
	}
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/n, sumY/n
	var cov, varX, varY float64
	for i := range x {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varX*varY)
}
