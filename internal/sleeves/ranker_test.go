package sleeves

import (
	"math"
	"testing"
	"time"

	"github.com/apershukov/allocator/pkg/models"
)

// growthBars builds a daily series compounding at the given daily rate.
func growthBars(symbol string, n int, dailyRate float64) []models.Bar {
	bars := make([]models.Bar, n)
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		price *= 1 + dailyRate
		bars[i] = models.Bar{
			Symbol: symbol,
			Date:   day,
			Open:   models.NewDecimal(price),
			High:   models.NewDecimal(price),
			Low:    models.NewDecimal(price),
			Close:  models.NewDecimal(price),
		}
		day = day.AddDate(0, 0, 1)
	}
	return bars
}

func simpleDefinition(symbols ...string) Definition {
	instruments := make([]Instrument, len(symbols))
	for i, s := range symbols {
		instruments[i] = Instrument{Symbol: s}
	}
	return Definition{
		Sleeve:      models.SleeveCommodities,
		Instruments: instruments,
		Horizons:    []Horizon{{21, 0.5}, {63, 0.3}, {126, 0.2}},
		WeightFloor: 0.10,
		TrendGate:   true,
	}
}

func TestRanker_TrendGate(t *testing.T) {
	t.Run("199 bars is excluded even with a rising price", func(t *testing.T) {
		def := simpleDefinition("YOUNG", "OLD")
		history := map[string][]models.Bar{
			"YOUNG": growthBars("YOUNG", 199, 0.002),
			"OLD":   growthBars("OLD", 300, 0.001),
		}
		result := NewRanker(def).RankAndSelect(history, 0.2, models.KeyModerateRisk)
		for _, sym := range result.Symbols() {
			if sym == "YOUNG" {
				t.Error("instrument with 199 bars must not pass the gate")
			}
		}
	})

	t.Run("200 bars above its average is included", func(t *testing.T) {
		def := simpleDefinition("EXACT")
		history := map[string][]models.Bar{
			"EXACT": growthBars("EXACT", 200, 0.001),
		}
		result := NewRanker(def).RankAndSelect(history, 0.2, models.KeyModerateRisk)
		if len(result.Selected) != 1 || result.Selected[0].Symbol != "EXACT" {
			t.Fatalf("expected EXACT selected, got %v", result.Symbols())
		}
		if result.Weights["EXACT"] != 1.0 {
			t.Errorf("sole selection must weigh 1.0, got %f", result.Weights["EXACT"])
		}
	})

	t.Run("declining instrument is excluded", func(t *testing.T) {
		def := simpleDefinition("UP", "DOWN")
		history := map[string][]models.Bar{
			"UP":   growthBars("UP", 300, 0.001),
			"DOWN": growthBars("DOWN", 300, -0.001),
		}
		result := NewRanker(def).RankAndSelect(history, 0.2, models.KeyModerateRisk)
		if len(result.Selected) != 1 || result.Selected[0].Symbol != "UP" {
			t.Fatalf("expected only UP, got %v", result.Symbols())
		}
	})

	t.Run("missing history is a warning not a failure", func(t *testing.T) {
		def := simpleDefinition("HAVE", "GHOST")
		history := map[string][]models.Bar{
			"HAVE": growthBars("HAVE", 300, 0.001),
		}
		result := NewRanker(def).RankAndSelect(history, 0.2, models.KeyModerateRisk)
		if len(result.Selected) != 1 {
			t.Fatalf("expected one selection, got %v", result.Symbols())
		}
		if len(result.Warnings) == 0 {
			t.Error("missing history should leave a warning")
		}
	})

	t.Run("empty sleeve keeps its budgeted fraction", func(t *testing.T) {
		def := simpleDefinition("DOWN")
		history := map[string][]models.Bar{
			"DOWN": growthBars("DOWN", 300, -0.001),
		}
		result := NewRanker(def).RankAndSelect(history, 0.25, models.KeyModerateRisk)
		if len(result.Selected) != 0 {
			t.Fatalf("expected empty selection, got %v", result.Symbols())
		}
		if result.RealizedFraction != 0.25 {
			t.Errorf("momentum sleeves report the budget even when empty, got %f", result.RealizedFraction)
		}
	})
}

func TestRanker_CompositeOrdering(t *testing.T) {
	def := simpleDefinition("FAST", "MID", "SLOW")
	history := map[string][]models.Bar{
		"FAST": growthBars("FAST", 300, 0.003),
		"MID":  growthBars("MID", 300, 0.002),
		"SLOW": growthBars("SLOW", 300, 0.001),
	}

	t.Run("stronger momentum ranks first", func(t *testing.T) {
		result := NewRanker(def).RankAndSelect(history, 0.2, models.KeyModerateRisk)
		got := result.Symbols()
		want := []string{"FAST", "MID", "SLOW"}
		for i := range want {
			if i >= len(got) || got[i] != want[i] {
				t.Fatalf("expected order %v, got %v", want, got)
			}
		}
		for i, c := range result.Selected {
			if c.Rank != i+1 {
				t.Errorf("rank %d expected at position %d, got %d", i+1, i, c.Rank)
			}
		}
	})

	t.Run("ranking is idempotent", func(t *testing.T) {
		first := NewRanker(def).RankAndSelect(history, 0.2, models.KeyModerateRisk)
		second := NewRanker(def).RankAndSelect(history, 0.2, models.KeyModerateRisk)
		for i := range first.Selected {
			if first.Selected[i].Symbol != second.Selected[i].Symbol {
				t.Fatalf("re-ranking changed order: %v vs %v", first.Symbols(), second.Symbols())
			}
		}
	})

	t.Run("identical series tie on composite score", func(t *testing.T) {
		tied := map[string][]models.Bar{
			"AAA": growthBars("AAA", 300, 0.002),
			"BBB": growthBars("BBB", 300, 0.002),
		}
		result := NewRanker(simpleDefinition("AAA", "BBB")).RankAndSelect(tied, 0.2, models.KeyModerateRisk)
		if len(result.Selected) != 2 {
			t.Fatalf("expected both selected, got %v", result.Symbols())
		}
		if result.Selected[0].CompositeScore != result.Selected[1].CompositeScore {
			t.Errorf("identical returns must tie: %f vs %f",
				result.Selected[0].CompositeScore, result.Selected[1].CompositeScore)
		}
	})
}

func TestRanker_WeightInvariants(t *testing.T) {
	def := simpleDefinition("A", "B", "C", "D")
	def.TopK = 4
	history := map[string][]models.Bar{
		"A": growthBars("A", 300, 0.004),
		"B": growthBars("B", 300, 0.003),
		"C": growthBars("C", 300, 0.002),
		"D": growthBars("D", 300, 0.001),
	}
	result := NewRanker(def).RankAndSelect(history, 0.2, models.KeyModerateRisk)
	if len(result.Selected) != 4 {
		t.Fatalf("expected four selections, got %v", result.Symbols())
	}

	sum := 0.0
	for sym, w := range result.Weights {
		if w < def.WeightFloor-1e-9 {
			t.Errorf("%s weight %f below floor %f", sym, w, def.WeightFloor)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("weights must sum to 1.0, got %f", sum)
	}
	if result.Weights["A"] <= result.Weights["D"] {
		t.Errorf("higher score must earn more weight: A=%f D=%f",
			result.Weights["A"], result.Weights["D"])
	}
}

func TestRanker_SubgroupCap(t *testing.T) {
	def := Definition{
		Sleeve: models.SleeveEquity,
		Instruments: []Instrument{
			{"L1", "large"}, {"L2", "large"}, {"L3", "large"},
			{"S1", "small"},
		},
		Horizons:    []Horizon{{21, 0.5}, {63, 0.3}, {126, 0.2}},
		TopK:        4,
		SubgroupCap: 2,
		WeightFloor: 0.10,
		TrendGate:   true,
	}
	// All three large caps outrank the small cap.
	history := map[string][]models.Bar{
		"L1": growthBars("L1", 300, 0.005),
		"L2": growthBars("L2", 300, 0.004),
		"L3": growthBars("L3", 300, 0.003),
		"S1": growthBars("S1", 300, 0.001),
	}
	result := NewRanker(def).RankAndSelect(history, 0.33, models.KeyRiskOn)
	got := result.Symbols()
	want := []string{"L1", "L2", "S1"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRanker_ExclusivePairs(t *testing.T) {
	def := simpleDefinition("GLD", "GDX", "DBC")
	def.ExclusivePairs = [][2]string{{"GLD", "GDX"}}
	history := map[string][]models.Bar{
		"GLD": growthBars("GLD", 300, 0.003),
		"GDX": growthBars("GDX", 300, 0.002),
		"DBC": growthBars("DBC", 300, 0.001),
	}
	result := NewRanker(def).RankAndSelect(history, 0.2, models.KeyModerateRisk)
	for _, sym := range result.Symbols() {
		if sym == "GDX" {
			t.Error("lower-ranked member of an exclusive pair must be dropped")
		}
	}
	if len(result.Selected) != 2 {
		t.Fatalf("expected GLD and DBC, got %v", result.Symbols())
	}
}

func TestRanker_StructuralDowntrend(t *testing.T) {
	def := CryptoDefinition()

	t.Run("bear anchors block the short-history bypass", func(t *testing.T) {
		history := map[string][]models.Bar{
			"IBIT": growthBars("IBIT", 300, -0.002),
			"ETHA": growthBars("ETHA", 300, -0.002),
			"BITO": growthBars("BITO", 300, -0.002),
			"NODE": growthBars("NODE", 120, 0.004),
		}
		result := NewRanker(def).RankAndSelect(history, 0.05, models.KeyModerateRisk)
		if !result.StructuralDowntrend {
			t.Error("all anchors below their averages must flag a structural downtrend")
		}
		if len(result.Selected) != 0 {
			t.Errorf("expected empty selection, got %v", result.Symbols())
		}
	})

	t.Run("healthy anchors keep the bypass", func(t *testing.T) {
		history := map[string][]models.Bar{
			"IBIT": growthBars("IBIT", 300, 0.002),
			"ETHA": growthBars("ETHA", 300, 0.001),
			"BITO": growthBars("BITO", 300, -0.002),
			"NODE": growthBars("NODE", 120, 0.004),
		}
		result := NewRanker(def).RankAndSelect(history, 0.05, models.KeyModerateRisk)
		if result.StructuralDowntrend {
			t.Error("one healthy anchor is enough to clear the downtrend flag")
		}
		found := false
		for _, sym := range result.Symbols() {
			if sym == "NODE" {
				found = true
			}
		}
		if !found {
			t.Errorf("young instrument should pass via the bypass, got %v", result.Symbols())
		}
		if len(result.Warnings) == 0 {
			t.Error("bypass should leave a warning")
		}
	})
}

func TestRanker_TrendOverlay(t *testing.T) {
	def := Definition{
		Sleeve: models.SleeveManagedFutures,
		Instruments: []Instrument{
			{Symbol: "TREND"}, {Symbol: "CHOP"},
		},
		Horizons:     []Horizon{{21, 0.5}, {63, 0.3}, {126, 0.2}},
		TopK:         3,
		WeightFloor:  0.10,
		RiskAdjusted: true,
		TrendOverlay: true,
	}
	history := map[string][]models.Bar{
		"TREND": growthBars("TREND", 400, 0.002),
		"CHOP":  growthBars("CHOP", 400, -0.002),
	}
	result := NewRanker(def).RankAndSelect(history, 0.3, models.KeyModerateRisk)
	if len(result.Selected) != 1 || result.Selected[0].Symbol != "TREND" {
		t.Fatalf("expected only TREND, got %v", result.Symbols())
	}
	if result.Selected[0].TrendScore == 0 {
		t.Error("a steadily rising fund should score trend points")
	}
}

func TestRanker_RegimeEligibility(t *testing.T) {
	def := FixedIncomeDefinition()
	history := map[string][]models.Bar{
		"TLT":  growthBars("TLT", 300, 0.002),
		"SGOV": growthBars("SGOV", 300, 0.0002),
		"TIP":  growthBars("TIP", 300, 0.0005),
		"AGG":  growthBars("AGG", 300, 0.0008),
	}

	t.Run("risk on keeps long duration out", func(t *testing.T) {
		result := NewRanker(def).RankAndSelect(history, 0.05, models.KeyRiskOn)
		for _, sym := range result.Symbols() {
			if sym == "TLT" {
				t.Error("TLT is not eligible in a risk-on regime")
			}
		}
		if len(result.Selected) != 3 {
			t.Errorf("expected the three eligible funds, got %v", result.Symbols())
		}
	})

	t.Run("crisis admits the full universe", func(t *testing.T) {
		result := NewRanker(def).RankAndSelect(history, 0.15, models.KeyCrisis)
		if len(result.Selected) != 4 {
			t.Fatalf("expected all four funds, got %v", result.Symbols())
		}
		if result.Symbols()[0] != "TLT" {
			t.Errorf("strongest momentum should rank first, got %v", result.Symbols())
		}
	})
}

func TestPositionWeights(t *testing.T) {
	t.Run("zero total score splits equally", func(t *testing.T) {
		w := positionWeights([]float64{0, 0, 0}, 0.10)
		for _, v := range w {
			if math.Abs(v-1.0/3) > 1e-3 {
				t.Errorf("expected equal thirds, got %v", w)
			}
		}
	})

	t.Run("rounding correction lands on the first position", func(t *testing.T) {
		w := positionWeights([]float64{3.1, 2.2, 1.7}, 0.10)
		sum := 0.0
		for _, v := range w {
			sum += v
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("weights must sum to exactly 1.0 after correction, got %.10f", sum)
		}
	})
}
