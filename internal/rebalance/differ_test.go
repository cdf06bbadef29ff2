package rebalance

import (
	"strings"
	"testing"

	"github.com/apershukov/allocator/pkg/models"
)

func baseDecision() models.Decision {
	return models.Decision{
		Regime: models.RegimeSnapshot{
			Color:       models.ColorGreen,
			AboveLongMA: true,
			VIXClose:    15,
		},
		RegimeKey: models.KeyRiskOn,
		Allocation: models.AllocationVector{
			models.SleeveEquity:         0.50,
			models.SleeveFixedIncome:    0.05,
			models.SleeveCommodities:    0.20,
			models.SleeveCrypto:         0.05,
			models.SleeveManagedFutures: 0.20,
			models.SleeveAlternatives:   0.00,
		},
		Sleeves: map[models.Sleeve]models.SleeveResult{
			models.SleeveEquity: {
				Sleeve: models.SleeveEquity,
				Selected: []models.Candidate{
					{Symbol: "SPY", Rank: 1},
					{Symbol: "QQQ", Rank: 2},
				},
			},
			models.SleeveCommodities: {
				Sleeve: models.SleeveCommodities,
				Selected: []models.Candidate{
					{Symbol: "GLD", Rank: 1},
				},
			},
		},
	}
}

func TestDiffer_FirstRun(t *testing.T) {
	change := NewDiffer().Diff(baseDecision(), nil)
	if !change.FirstRun {
		t.Error("nil previous must flag a first run")
	}
	if len(change.Changes) != 0 {
		t.Errorf("first run carries no changes, got %v", change.Changes)
	}
	if !strings.Contains(change.Summary, "First run") {
		t.Errorf("summary should mention first run, got %q", change.Summary)
	}
	if !strings.Contains(change.Summary, "SPY") {
		t.Error("first run summary should list current selections")
	}
}

func TestDiffer_NoChanges(t *testing.T) {
	current := baseDecision()
	previous := baseDecision()
	change := NewDiffer().Diff(current, &previous)
	if len(change.Changes) != 0 {
		t.Fatalf("identical decisions must produce no changes, got %v", change.Changes)
	}
	if !strings.Contains(change.Summary, "NO ACTION TODAY") {
		t.Errorf("expected a no-action summary, got %q", change.Summary)
	}
}

func TestDiffer_RegimeShift(t *testing.T) {
	current := baseDecision()
	current.Regime.Color = models.ColorRed
	previous := baseDecision()

	change := NewDiffer().Diff(current, &previous)
	shifts := 0
	for _, c := range change.Changes {
		if strings.HasPrefix(c, "REGIME SHIFT") {
			shifts++
			if !strings.Contains(c, "green -> red") {
				t.Errorf("shift should read green -> red, got %q", c)
			}
		}
	}
	if shifts != 1 {
		t.Errorf("expected exactly one regime shift entry, got %d (%v)", shifts, change.Changes)
	}
}

func TestDiffer_LongMACross(t *testing.T) {
	current := baseDecision()
	current.Regime.AboveLongMA = false
	previous := baseDecision()

	change := NewDiffer().Diff(current, &previous)
	found := false
	for _, c := range change.Changes {
		if strings.Contains(c, "crossed below") {
			found = true
		}
		if strings.Contains(c, "crossed above") {
			t.Errorf("wrong direction: %q", c)
		}
	}
	if !found {
		t.Errorf("expected a crossed-below entry, got %v", change.Changes)
	}
}

func TestDiffer_AllocationDrift(t *testing.T) {
	current := baseDecision()
	previous := baseDecision()

	t.Run("small drift is ignored", func(t *testing.T) {
		current.Allocation[models.SleeveEquity] = 0.51
		change := NewDiffer().Diff(current, &previous)
		if len(change.Changes) != 0 {
			t.Errorf("1pp drift is under the tolerance, got %v", change.Changes)
		}
	})

	t.Run("large drift is reported", func(t *testing.T) {
		current.Allocation[models.SleeveEquity] = 0.30
		change := NewDiffer().Diff(current, &previous)
		found := false
		for _, c := range change.Changes {
			if strings.Contains(c, "equity allocation: 50% -> 30%") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected an equity drift entry, got %v", change.Changes)
		}
	})
}

func TestDiffer_SelectionChanges(t *testing.T) {
	current := baseDecision()
	previous := baseDecision()

	// Equity gains IWM and loses QQQ; commodities untouched.
	current.Sleeves[models.SleeveEquity] = models.SleeveResult{
		Sleeve: models.SleeveEquity,
		Selected: []models.Candidate{
			{Symbol: "SPY", Rank: 1},
			{Symbol: "IWM", Rank: 2},
		},
	}

	change := NewDiffer().Diff(current, &previous)
	var added, removed bool
	for _, c := range change.Changes {
		switch c {
		case "equity: added IWM":
			added = true
		case "equity: removed QQQ":
			removed = true
		default:
			if strings.Contains(c, "commodities") {
				t.Errorf("unchanged sleeve must not appear: %q", c)
			}
		}
	}
	if !added || !removed {
		t.Errorf("expected both added and removed entries, got %v", change.Changes)
	}
	if !strings.Contains(change.Summary, "ACTION REQUIRED") {
		t.Errorf("expected an action summary, got %q", change.Summary)
	}
}

func TestDiffer_WarningsAppended(t *testing.T) {
	current := baseDecision()
	current.Warnings = []string{"NODE: only 120 bars, below the 200-bar gate minimum, including anyway"}
	current.Regime.Color = models.ColorYellow
	previous := baseDecision()

	change := NewDiffer().Diff(current, &previous)
	if !strings.Contains(change.Summary, "Warnings (1):") {
		t.Errorf("summary should append active warnings, got %q", change.Summary)
	}
}
