package regime

import (
	"math"
	"testing"
)

func boolsEqual(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApplyConfirmation(t *testing.T) {
	t.Run("single disagreeing day does not flip", func(t *testing.T) {
		raw := []bool{true, true, false, true, true}
		got := ApplyConfirmation(raw, 2)
		want := []bool{true, true, true, true, true}
		if !boolsEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("flips after required streak", func(t *testing.T) {
		raw := []bool{true, false, false, false, true}
		got := ApplyConfirmation(raw, 2)
		// Flip lands on the second consecutive false.
		want := []bool{true, true, false, false, false}
		if !boolsEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
		// Flip back also needs the streak; one true day is not enough.
		if got[4] {
			t.Error("single recovery day should not flip state back")
		}
	})

	t.Run("symmetric recovery", func(t *testing.T) {
		raw := []bool{false, false, true, true, true}
		got := ApplyConfirmation(raw, 2)
		want := []bool{true, false, false, true, true}
		if !boolsEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("zero confirmation days passes raw through", func(t *testing.T) {
		raw := []bool{true, false, true, false}
		got := ApplyConfirmation(raw, 0)
		if !boolsEqual(got, raw) {
			t.Errorf("got %v, want raw %v", got, raw)
		}
	})

	t.Run("interrupted streak resets the counter", func(t *testing.T) {
		raw := []bool{true, false, false, true, false, false, false, true}
		got := ApplyConfirmation(raw, 3)
		want := []bool{true, true, true, true, true, true, false, false}
		if !boolsEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestCrossEntryPulses(t *testing.T) {
	t.Run("fires only on the rising edge", func(t *testing.T) {
		values := []float64{10, 20, 30, 35, 40, 15, 30, 30}
		got := CrossEntryPulses(values, 25, 0)
		want := []bool{false, false, true, false, false, false, true, false}
		if !boolsEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("never fires on consecutive above-threshold days", func(t *testing.T) {
		values := []float64{30, 30, 30, 30}
		got := CrossEntryPulses(values, 25, 0)
		for i, v := range got {
			if v {
				t.Errorf("unexpected pulse at index %d", i)
			}
		}
	})

	t.Run("confirmation delays the pulse", func(t *testing.T) {
		// Below threshold long enough to confirm "off", then re-entry with
		// a 2-day confirmation: the pulse lands on the second above day.
		values := []float64{10, 10, 10, 30, 30, 30}
		got := CrossEntryPulses(values, 25, 2)
		want := []bool{false, false, false, false, true, false}
		if !boolsEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestPercentB(t *testing.T) {
	t.Run("constant series has no band width", func(t *testing.T) {
		values := make([]float64, 30)
		for i := range values {
			values[i] = 20
		}
		pctB := PercentB(values, 20, 2.0)
		if !math.IsNaN(pctB[len(pctB)-1]) {
			t.Errorf("expected NaN %%B for zero-width band, got %f", pctB[len(pctB)-1])
		}
	})

	t.Run("spike sits above the upper band", func(t *testing.T) {
		values := make([]float64, 30)
		for i := range values {
			values[i] = 15 + 0.1*float64(i%3)
		}
		values[len(values)-1] = 40
		pctB := PercentB(values, 20, 2.0)
		if got := pctB[len(pctB)-1]; got <= 1.0 {
			t.Errorf("expected %%B above 1.0 after spike, got %f", got)
		}
	})

	t.Run("warmup is NaN", func(t *testing.T) {
		values := []float64{1, 2, 3}
		pctB := PercentB(values, 20, 2.0)
		for i, b := range pctB {
			if !math.IsNaN(b) {
				t.Errorf("expected NaN during warmup at %d, got %f", i, b)
			}
		}
	})
}

func TestVolatilityExit(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 20 + float64(i%5)
	}
	// Collapse far below the recent range: below the lower band.
	values[len(values)-1] = 5

	got := VolatilityExit(values, 20, 2.0, 0)
	if !got[len(got)-1] {
		t.Error("expected exit pulse when value drops below the lower band")
	}
	if got[len(got)-2] {
		t.Error("no exit pulse expected while inside the band")
	}
}

func TestCombinedBelowCount(t *testing.T) {
	series := [][]float64{
		{60, 40, 40},
		{60, 60, 40},
		{60, 60, 40},
	}
	got := CombinedBelowCount(series, 50)
	want := []int{0, 1, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("day %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCumulativeBreadthZScore(t *testing.T) {
	t.Run("steady advances stay risk-on", func(t *testing.T) {
		ratio := make([]float64, 300)
		for i := range ratio {
			ratio[i] = 1.2 // persistent breadth strength
		}
		signal, _ := CumulativeBreadthZScore(ratio, 50, 252, -1.0, 0)
		if !signal[len(signal)-1] {
			t.Error("persistently positive breadth should read risk-on")
		}
	})

	t.Run("collapse in breadth turns risk-off", func(t *testing.T) {
		ratio := make([]float64, 400)
		for i := range ratio {
			if i < 300 {
				ratio[i] = 1.3
			} else {
				ratio[i] = 0.4 // decliners dominate
			}
		}
		signal, zscore := CumulativeBreadthZScore(ratio, 50, 252, -1.0, 0)
		if signal[len(signal)-1] {
			t.Errorf("breadth collapse should read risk-off (z=%f)", zscore[len(zscore)-1])
		}
	})

	t.Run("non-positive ratios do not poison the cumulative sum", func(t *testing.T) {
		ratio := make([]float64, 300)
		for i := range ratio {
			ratio[i] = 1.1
		}
		ratio[100] = 0
		ratio[101] = math.NaN()
		signal, zscore := CumulativeBreadthZScore(ratio, 50, 252, -1.0, 0)
		if math.IsNaN(zscore[len(zscore)-1]) {
			t.Error("z-score should stay finite past bad input days")
		}
		_ = signal
	})
}
