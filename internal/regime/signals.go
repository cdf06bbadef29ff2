// Package regime computes market-regime signals from aligned daily series
// and folds them into a discrete classification.
package regime

import (
	"math"

	"github.com/cinar/indicator"
)

// ApplyConfirmation debounces a raw boolean series. The output only flips
// state after confirmDays consecutive raw observations disagree with the
// current output; a shorter disagreement streak resets. Implemented as a
// two-state machine with a counter, one deterministic left-to-right pass.
// confirmDays <= 0 disables debouncing.
func ApplyConfirmation(raw []bool, confirmDays int) []bool {
	out := make([]bool, len(raw))
	if confirmDays <= 0 {
		copy(out, raw)
		return out
	}

	state := true
	streak := 0
	for i, v := range raw {
		if v != state {
			streak++
			if streak >= confirmDays {
				state = v
				streak = 0
			}
		} else {
			streak = 0
		}
		out[i] = state
	}
	return out
}

// CumulativeBreadthZScore computes the advance/decline regime signal:
// tanh(log(ratio)) bounds each day's ratio to [-1, 1] symmetric around
// parity, the bounded values are cumulated, smoothed with an SMA, and
// z-scored against the smoothed line's own rolling mean and deviation.
// True = risk-on (z >= threshold).
func CumulativeBreadthZScore(ratio []float64, smoothing, lookback int, threshold float64, confirmDays int) ([]bool, []float64) {
	bounded := make([]float64, len(ratio))
	for i, r := range ratio {
		if r > 0 && !math.IsNaN(r) {
			bounded[i] = math.Tanh(math.Log(r))
		}
	}

	cumulative := make([]float64, len(bounded))
	var sum float64
	for i, v := range bounded {
		sum += v
		cumulative[i] = sum
	}

	smoothed := indicator.Sma(smoothing, cumulative)
	mean := indicator.Sma(lookback, smoothed)
	std := indicator.Std(lookback, smoothed)

	zscore := make([]float64, len(smoothed))
	raw := make([]bool, len(smoothed))
	for i := range smoothed {
		if std[i] > 0 {
			zscore[i] = (smoothed[i] - mean[i]) / std[i]
		}
		raw[i] = zscore[i] >= threshold
	}

	return ApplyConfirmation(raw, confirmDays), zscore
}

// CrossEntryPulses emits a one-day pulse the first time the series holds
// at or above its threshold after having been below (rising edge only,
// debounced by confirmDays). Consecutive above-threshold days never fire.
func CrossEntryPulses(values []float64, threshold float64, confirmDays int) []bool {
	raw := make([]bool, len(values))
	for i, v := range values {
		raw[i] = v >= threshold
	}
	confirmed := ApplyConfirmation(raw, confirmDays)

	pulses := make([]bool, len(confirmed))
	for i := 1; i < len(confirmed); i++ {
		pulses[i] = confirmed[i] && !confirmed[i-1]
	}
	return pulses
}

// PercentB computes the Bollinger %B series for a window and deviation
// multiplier: (value - lower) / (upper - lower). NaN where the band has no
// width or the window has not filled.
func PercentB(values []float64, window int, stdMult float64) []float64 {
	sma := indicator.Sma(window, values)
	std := indicator.Std(window, values)

	out := make([]float64, len(values))
	for i := range values {
		width := 2 * stdMult * std[i]
		if i < window-1 || width == 0 {
			out[i] = math.NaN()
			continue
		}
		lower := sma[i] - stdMult*std[i]
		out[i] = (values[i] - lower) / width
	}
	return out
}

// VolatilityExit pulses true when the series drops below its lower
// Bollinger band (%B < floor).
func VolatilityExit(values []float64, window int, stdMult, floor float64) []bool {
	pctB := PercentB(values, window, stdMult)
	out := make([]bool, len(values))
	for i, b := range pctB {
		out[i] = !math.IsNaN(b) && b < floor
	}
	return out
}

// CombinedBelowCount counts, per day, how many of the given series sit
// below the threshold.
func CombinedBelowCount(series [][]float64, threshold float64) []int {
	if len(series) == 0 {
		return nil
	}
	n := len(series[0])
	out := make([]int, n)
	for _, col := range series {
		for i := 0; i < n && i < len(col); i++ {
			if col[i] < threshold {
				out[i]++
			}
		}
	}
	return out
}
