package rebalance

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// allocationTolerance is the absolute drift, in allocation fraction, below
// which a sleeve's budget change is considered noise.
const allocationTolerance = 0.02

// Differ compares today's decision against the previously stored one and
// produces the human-readable change list.
type Differ struct {
	tolerance float64
}

func NewDiffer() *Differ {
	return &Differ{tolerance: allocationTolerance}
}

// Diff builds the change set. A nil previous decision means first run.
// Change ordering is fixed: regime shift, long-MA cross, allocation
// drift, then per-sleeve selection changes over the sorted sleeve union.
func (d *Differ) Diff(current models.Decision, previous *models.Decision) models.ChangeSet {
	if previous == nil {
		return models.ChangeSet{
			FirstRun: true,
			Summary:  d.firstRunSummary(current),
		}
	}

	var changes []string

	if current.Regime.Color != previous.Regime.Color {
		changes = append(changes, fmt.Sprintf("REGIME SHIFT: %s -> %s",
			previous.Regime.Color, current.Regime.Color))
	}

	if current.Regime.AboveLongMA != previous.Regime.AboveLongMA {
		direction := "crossed below"
		if current.Regime.AboveLongMA {
			direction = "crossed above"
		}
		changes = append(changes, fmt.Sprintf("index %s its 200-day moving average", direction))
	}

	for _, sleeve := range sleeveUnion(current.Allocation, previous.Allocation) {
		curr := current.Allocation[sleeve]
		prev := previous.Allocation[sleeve]
		if diff := curr - prev; diff > d.tolerance || diff < -d.tolerance {
			changes = append(changes, fmt.Sprintf("%s allocation: %.0f%% -> %.0f%%",
				sleeve, prev*100, curr*100))
		}
	}

	currSets := selectionSets(current)
	prevSets := selectionSets(*previous)
	for _, sleeve := range selectionUnion(currSets, prevSets) {
		added := difference(currSets[sleeve], prevSets[sleeve])
		removed := difference(prevSets[sleeve], currSets[sleeve])
		if len(added) > 0 {
			changes = append(changes, fmt.Sprintf("%s: added %s", sleeve, strings.Join(added, ", ")))
		}
		if len(removed) > 0 {
			changes = append(changes, fmt.Sprintf("%s: removed %s", sleeve, strings.Join(removed, ", ")))
		}
	}

	logger.Info("rebalance diff complete", zap.Int("changes", len(changes)))
	return models.ChangeSet{
		Changes: changes,
		Summary: d.summary(current, changes),
	}
}

func (d *Differ) firstRunSummary(current models.Decision) string {
	var b strings.Builder
	b.WriteString(header(current))
	b.WriteString("First run, no previous data to compare.\n")
	for _, sleeve := range models.AllSleeves {
		result, ok := current.Sleeves[sleeve]
		if !ok {
			continue
		}
		symbols := "(none)"
		if len(result.Selected) > 0 {
			symbols = strings.Join(result.Symbols(), ", ")
		}
		b.WriteString(fmt.Sprintf("  %s (%.0f%%): %s\n",
			sleeve, result.BudgetedFraction*100, symbols))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Differ) summary(current models.Decision, changes []string) string {
	var b strings.Builder
	b.WriteString(header(current))

	if len(changes) == 0 {
		b.WriteString("NO ACTION TODAY, no changes from previous run.")
	} else {
		b.WriteString(fmt.Sprintf("ACTION REQUIRED, %d change(s) detected:\n", len(changes)))
		for _, change := range changes {
			b.WriteString("  - " + change + "\n")
		}
	}

	if len(current.Warnings) > 0 {
		b.WriteString(fmt.Sprintf("\nWarnings (%d):\n", len(current.Warnings)))
		for _, w := range current.Warnings {
			b.WriteString("  - " + w + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func header(current models.Decision) string {
	return fmt.Sprintf("Regime: %s | VIX: %.2f | Above 200MA: %t\n\n",
		current.Regime.Color, current.Regime.VIXClose, current.Regime.AboveLongMA)
}

func selectionSets(decision models.Decision) map[models.Sleeve]map[string]bool {
	sets := map[models.Sleeve]map[string]bool{}
	for sleeve, result := range decision.Sleeves {
		set := map[string]bool{}
		for _, c := range result.Selected {
			set[c.Symbol] = true
		}
		sets[sleeve] = set
	}
	return sets
}

func sleeveUnion(a, b models.AllocationVector) []models.Sleeve {
	seen := map[models.Sleeve]bool{}
	for sleeve := range a {
		seen[sleeve] = true
	}
	for sleeve := range b {
		seen[sleeve] = true
	}
	return sortedSleeves(seen)
}

func selectionUnion(a, b map[models.Sleeve]map[string]bool) []models.Sleeve {
	seen := map[models.Sleeve]bool{}
	for sleeve := range a {
		seen[sleeve] = true
	}
	for sleeve := range b {
		seen[sleeve] = true
	}
	return sortedSleeves(seen)
}

func sortedSleeves(seen map[models.Sleeve]bool) []models.Sleeve {
	out := make([]models.Sleeve, 0, len(seen))
	for sleeve := range seen {
		out = append(out, sleeve)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// difference returns the members of a missing from b, sorted.
func difference(a, b map[string]bool) []string {
	var out []string
	for sym := range a {
		if !b[sym] {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
