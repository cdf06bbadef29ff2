package sleeves

import (
	"github.com/cinar/indicator"

	"github.com/apershukov/allocator/pkg/models"
)

// trendStrength is the moving-average overlay used by trend-following
// funds. The ATR buffer keeps volatile funds from whipsawing around their
// averages: price above (MA - 1*ATR) still counts as above.
type trendStrength struct {
	above50  bool
	above200 bool
	slope50  float64
	slope200 float64
	atr      float64
	score    int // 0-4, count of positive signals
}

func evaluateTrend(bars []models.Bar) trendStrength {
	var t trendStrength
	if len(bars) == 0 {
		return t
	}

	closes := models.Closes(bars)
	last := closes[len(closes)-1]

	if len(bars) > atrPeriod {
		highs := make([]float64, len(bars))
		lows := make([]float64, len(bars))
		for i, b := range bars {
			highs[i] = b.HighF()
			lows[i] = b.LowF()
		}
		_, atr := indicator.Atr(atrPeriod, highs, lows, closes)
		t.atr = atr[len(atr)-1]
	}
	buffer := t.atr * atrBufferMult

	if ma50, ok := lastSMA(closes, 50); ok && last > ma50-buffer {
		t.above50 = true
	}
	if ma200, ok := lastSMA(closes, 200); ok && last > ma200-buffer {
		t.above200 = true
	}

	var slope50Up, slope200Up bool
	if slope, ok := maSlope(closes, 50); ok {
		t.slope50 = slope
		slope50Up = slope > 0
	}
	if slope, ok := maSlope(closes, 200); ok {
		t.slope200 = slope
		slope200Up = slope > 0
	}

	for _, hit := range []bool{t.above50, t.above200, slope50Up, slope200Up} {
		if hit {
			t.score++
		}
	}
	return t
}

// maSlope is the per-day change of the moving average over the last
// slopeDays days. Positive means the average is rising.
func maSlope(closes []float64, window int) (float64, bool) {
	if len(closes) < window+slopeDays {
		return 0, false
	}
	ma := indicator.Sma(window, closes)
	recent := ma[len(ma)-1]
	past := ma[len(ma)-1-slopeDays]
	return (recent - past) / float64(slopeDays), true
}
