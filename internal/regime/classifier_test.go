package regime

import (
	"testing"
	"time"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/pkg/models"
)

func testRegimeConfig() *config.RegimeConfig {
	return &config.RegimeConfig{
		IndexSymbol:         "SPX",
		VIXSymbol:           "VIX",
		ADRatioSymbol:       "ADRN",
		BreadthSlowSymbol:   "MMTH",
		BreadthMediumSymbol: "MMFI",
		BreadthFastSymbol:   "MMTW",
		LongMAPeriod:        200,
		ZScoreLookback:      252,
		ZScoreSmoothing:     50,
		ZScoreThreshold:     -1.0,
		CrossThreshold:      25,
		CrossMediumConfirm:  3,
		CrossFastConfirm:    3,
		VolExitWindow:       20,
		VolExitStdDev:       2.0,
		CombinedThreshold:   50,
	}
}

// constantSeries builds daily bars ending today with the given closes.
func constantSeries(symbol string, n int, value float64) []models.Bar {
	return trendSeries(symbol, n, value, 0)
}

func trendSeries(symbol string, n int, start, step float64) []models.Bar {
	bars := make([]models.Bar, n)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		v := start + step*float64(i)
		bars[i] = models.Bar{
			Symbol: symbol,
			Date:   day,
			Open:   models.NewDecimal(v),
			High:   models.NewDecimal(v),
			Low:    models.NewDecimal(v),
			Close:  models.NewDecimal(v),
		}
		day = day.AddDate(0, 0, 1)
	}
	return bars
}

func healthyInputs(n int) map[string][]models.Bar {
	return map[string][]models.Bar{
		"SPX":  trendSeries("SPX", n, 4000, 2), // rising, well above its long MA
		"VIX":  constantSeries("VIX", n, 14),
		"ADRN": constantSeries("ADRN", n, 1.2),
		"MMTH": constantSeries("MMTH", n, 70),
		"MMFI": constantSeries("MMFI", n, 65),
		"MMTW": constantSeries("MMTW", n, 60),
	}
}

func classify(t *testing.T, series map[string][]models.Bar) models.RegimeSnapshot {
	t.Helper()
	frame, err := NewFrame(series)
	if err != nil {
		t.Fatalf("failed to build frame: %v", err)
	}
	snapshot, err := NewClassifier(testRegimeConfig()).Classify(frame, time.Now())
	if err != nil {
		t.Fatalf("classification failed: %v", err)
	}
	return snapshot
}

func TestClassifier_Classify(t *testing.T) {
	t.Run("healthy market is green and above long MA", func(t *testing.T) {
		snapshot := classify(t, healthyInputs(400))
		if snapshot.Color != models.ColorGreen {
			t.Errorf("expected green, got %s", snapshot.Color)
		}
		if !snapshot.AboveLongMA {
			t.Error("rising index should sit above its long MA")
		}
		if snapshot.VIXClose != 14 {
			t.Errorf("expected VIX close 14, got %f", snapshot.VIXClose)
		}
	})

	t.Run("combined count maps to colors", func(t *testing.T) {
		cases := []struct {
			name   string
			mmth   float64
			mmfi   float64
			mmtw   float64
			expect models.RegimeColor
		}{
			{"one below is yellow", 70, 65, 40, models.ColorYellow},
			{"two below is orange", 70, 40, 40, models.ColorOrange},
			{"three below is red", 40, 40, 40, models.ColorRed},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				series := healthyInputs(400)
				series["MMTH"] = constantSeries("MMTH", 400, tc.mmth)
				series["MMFI"] = constantSeries("MMFI", 400, tc.mmfi)
				series["MMTW"] = constantSeries("MMTW", 400, tc.mmtw)
				snapshot := classify(t, series)
				if snapshot.Color != tc.expect {
					t.Errorf("expected %s, got %s", tc.expect, snapshot.Color)
				}
			})
		}
	})

	t.Run("breadth z-score risk-off overrides combined count", func(t *testing.T) {
		series := healthyInputs(400)
		// Collapse the AD ratio after a long healthy stretch.
		ratio := trendSeries("ADRN", 400, 1.3, 0)
		for i := 300; i < 400; i++ {
			ratio[i].Close = models.NewDecimal(0.4)
		}
		series["ADRN"] = ratio
		snapshot := classify(t, series)
		if snapshot.Color != models.ColorRed {
			t.Errorf("z-score risk-off must force red, got %s", snapshot.Color)
		}
		if sig, ok := snapshot.Signals[SignalBreadthZScore]; !ok || sig.Bool {
			t.Error("z-score signal should be reported risk-off")
		}
	})

	t.Run("below long MA is reported but does not change color", func(t *testing.T) {
		series := healthyInputs(400)
		series["SPX"] = trendSeries("SPX", 400, 5000, -3) // falling index
		snapshot := classify(t, series)
		if snapshot.AboveLongMA {
			t.Error("falling index should be below its long MA")
		}
		if snapshot.Color != models.ColorGreen {
			t.Errorf("long MA side must not alter color here, got %s", snapshot.Color)
		}
	})

	t.Run("missing index is fatal", func(t *testing.T) {
		series := healthyInputs(400)
		delete(series, "SPX")
		frame, err := NewFrame(series)
		if err != nil {
			t.Fatalf("frame: %v", err)
		}
		if _, err := NewClassifier(testRegimeConfig()).Classify(frame, time.Now()); err == nil {
			t.Fatal("expected error when the index series is absent")
		}
	})
}
