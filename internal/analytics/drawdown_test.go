package analytics

import (
	"fmt"
	"math"
	"testing"

	"github.com/apershukov/allocator/pkg/models"
)

func seriesOf(returns ...float64) returnSeries {
	s := returnSeries{returns: returns}
	for i := range returns {
		s.dates = append(s.dates, fmt.Sprintf("2025-01-%02d", i+1))
	}
	return s
}

func TestDrawdownStats(t *testing.T) {
	t.Run("drop and full recovery", func(t *testing.T) {
		returns := []float64{0.01, 0.01, 0.01, 0.01, 0.01, -0.20}
		for i := 0; i < 10; i++ {
			returns = append(returns, 0.05)
		}
		stats := drawdownStats(seriesOf(returns...))

		if math.Abs(stats.MaxDrawdown6Mo-(-0.20)) > 1e-9 {
			t.Errorf("max drawdown should capture the -20%% trough, got %f", stats.MaxDrawdown6Mo)
		}
		if stats.CurrentDrawdown != 0 {
			t.Errorf("fully recovered series has zero current drawdown, got %f", stats.CurrentDrawdown)
		}
		if stats.RecoveryDays == nil {
			t.Fatal("recovered series must report recovery days")
		}
		if *stats.RecoveryDays != 5 {
			t.Errorf("expected recovery in 5 trading days, got %d", *stats.RecoveryDays)
		}
		if stats.PeakDate != "2025-01-05" || stats.TroughDate != "2025-01-06" {
			t.Errorf("unexpected peak/trough dates: %s / %s", stats.PeakDate, stats.TroughDate)
		}
	})

	t.Run("still below peak has nil recovery", func(t *testing.T) {
		stats := drawdownStats(seriesOf(0.01, 0.01, 0.01, 0.01, 0.01, -0.20))
		if stats.RecoveryDays != nil {
			t.Errorf("unrecovered series must report nil recovery, got %d", *stats.RecoveryDays)
		}
		if math.Abs(stats.CurrentDrawdown-(-0.20)) > 1e-9 {
			t.Errorf("current drawdown should be -20%%, got %f", stats.CurrentDrawdown)
		}
	})

	t.Run("monotonic series never draws down", func(t *testing.T) {
		stats := drawdownStats(seriesOf(0.01, 0.02, 0.01, 0.03))
		if stats.MaxDrawdown6Mo != 0 || stats.CurrentDrawdown != 0 {
			t.Errorf("rising series has zero drawdowns, got %+v", stats)
		}
		if stats.PeakDate != "" || stats.RecoveryDays != nil {
			t.Error("no trough means no peak/trough dates and nil recovery")
		}
	})
}

func TestDrawdownReport(t *testing.T) {
	analyzer := NewAnalyzer()
	series := map[string]returnSeries{
		"SPY": seriesOf(0.01, 0.01, -0.10, 0.02),
		"TLT": seriesOf(0.00, 0.01, 0.01, 0.00),
	}
	results := map[models.Sleeve]models.SleeveResult{
		models.SleeveEquity: {
			Sleeve:   models.SleeveEquity,
			Selected: []models.Candidate{{Symbol: "SPY"}},
		},
		models.SleeveFixedIncome: {
			Sleeve:   models.SleeveFixedIncome,
			Selected: []models.Candidate{{Symbol: "TLT"}},
		},
	}
	allocation := models.AllocationVector{
		models.SleeveEquity:      0.60,
		models.SleeveFixedIncome: 0.40,
	}

	t.Run("per-sleeve and portfolio stats", func(t *testing.T) {
		report := analyzer.drawdowns(results, allocation, series)
		if report == nil {
			t.Fatal("expected a drawdown report")
		}
		if len(report.BySleeve) != 2 {
			t.Fatalf("expected stats for both sleeves, got %d", len(report.BySleeve))
		}
		equity, ok := report.BySleeve[models.SleeveEquity]
		if !ok {
			t.Fatal("equity sleeve missing from the report")
		}
		if equity.MaxDrawdown6Mo >= 0 {
			t.Errorf("equity sleeve took a -10%% day, got max drawdown %f", equity.MaxDrawdown6Mo)
		}
		if report.Portfolio == nil {
			t.Fatal("expected portfolio-level stats")
		}
		// The bond allocation cushions the equity hit, so the blended
		// drawdown is shallower than the equity sleeve's.
		if report.Portfolio.MaxDrawdown6Mo <= equity.MaxDrawdown6Mo {
			t.Errorf("portfolio drawdown %f should be shallower than equity %f",
				report.Portfolio.MaxDrawdown6Mo, equity.MaxDrawdown6Mo)
		}
	})

	t.Run("no usable sleeves yields nil", func(t *testing.T) {
		if report := analyzer.drawdowns(nil, allocation, series); report != nil {
			t.Errorf("expected nil report, got %+v", report)
		}
	})
}

func TestWeightedSeries(t *testing.T) {
	sleeveSeries := map[models.Sleeve]returnSeries{
		models.SleeveEquity:      seriesOf(0.10, 0.10),
		models.SleeveFixedIncome: seriesOf(0.02, 0.02),
	}

	t.Run("weights renormalize over contributors", func(t *testing.T) {
		// Commodities has weight but no data, so equity and fixed income
		// renormalize from 0.5+0.25 to 2/3 and 1/3.
		allocation := models.AllocationVector{
			models.SleeveEquity:      0.50,
			models.SleeveFixedIncome: 0.25,
			models.SleeveCommodities: 0.25,
		}
		out, ok := weightedSeries(sleeveSeries, allocation)
		if !ok {
			t.Fatal("expected a combined series")
		}
		want := 0.10*2.0/3.0 + 0.02/3.0
		if math.Abs(out.returns[0]-want) > 1e-9 {
			t.Errorf("expected %f, got %f", want, out.returns[0])
		}
	})

	t.Run("zero weight sleeves do not contribute", func(t *testing.T) {
		allocation := models.AllocationVector{
			models.SleeveEquity:      1.0,
			models.SleeveFixedIncome: 0.0,
		}
		out, ok := weightedSeries(sleeveSeries, allocation)
		if !ok {
			t.Fatal("expected a combined series")
		}
		if math.Abs(out.returns[0]-0.10) > 1e-9 {
			t.Errorf("expected pure equity returns, got %f", out.returns[0])
		}
	})

	t.Run("no contributors yields nothing", func(t *testing.T) {
		if _, ok := weightedSeries(sleeveSeries, models.AllocationVector{}); ok {
			t.Error("no positive weights should yield no series")
		}
	})
}
