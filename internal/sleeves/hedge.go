package sleeves

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/internal/regime"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

const momentumLookbackDays = 5

// hedgeWeightSchedule maps selection size to fixed priority weights. Only
// the first three priority slots ever deploy.
var hedgeWeightSchedule = map[int][]float64{
	1: {1.0},
	2: {0.6, 0.4},
	3: {0.5, 0.3, 0.2},
}

// HedgeSelector drives the alternatives sleeve. Unlike the momentum
// rankers its default state is inactive: capital only deploys while the
// volatility index is pushing through the upper half of its Bollinger
// band. No state persists across runs, so the dead zone between the entry
// and exit bands resolves to inactive.
type HedgeSelector struct {
	cfg     *config.HedgeConfig
	symbols []string
}

func NewHedgeSelector(cfg *config.HedgeConfig, symbols []string) *HedgeSelector {
	if len(symbols) == 0 {
		symbols = HedgeInstruments
	}
	return &HedgeSelector{cfg: cfg, symbols: symbols}
}

// Evaluate resolves the hedge sleeve from the volatility index history.
// The realized fraction is zero whenever the state machine lands on an
// inactive state, regardless of the regime budget.
func (h *HedgeSelector) Evaluate(vixBars []models.Bar, budgeted float64) models.SleeveResult {
	result := models.SleeveResult{
		Sleeve:           models.SleeveAlternatives,
		BudgetedFraction: budgeted,
		Weights:          map[string]float64{},
	}

	signal := h.signal(vixBars)
	result.HedgeSignal = &signal

	if !signal.State.Active() {
		logger.Info("volatility hedge inactive",
			zap.String("state", string(signal.State)),
			zap.Float64("vix_close", signal.VIXClose))
		return result
	}

	priority := h.symbols[1:] // structural hedges only
	if signal.State == models.HedgeSpike {
		priority = h.symbols // spike unlocks the pure-spike vehicle
	}
	if len(priority) > 3 {
		priority = priority[:3]
	}

	weights := hedgeWeightSchedule[len(priority)]
	for i, sym := range priority {
		result.Selected = append(result.Selected, models.Candidate{
			Symbol:    sym,
			Rank:      i + 1,
			Rationale: h.rationale(sym, signal),
		})
		result.Weights[sym] = weights[i]
	}
	if len(result.Selected) > 0 {
		result.RealizedFraction = budgeted
	}

	logger.Info("volatility hedge active",
		zap.String("state", string(signal.State)),
		zap.Strings("instruments", result.Symbols()),
		zap.Float64("realized_fraction", result.RealizedFraction))
	return result
}

// signal classifies today's volatility reading. Missing or warmup-length
// history is no_data, and the exit conditions win over the dead zone.
func (h *HedgeSelector) signal(vixBars []models.Bar) models.HedgeSignal {
	if len(vixBars) < h.cfg.BBWindow {
		return models.HedgeSignal{State: models.HedgeNoData}
	}

	closes := models.Closes(vixBars)
	vixClose := closes[len(closes)-1]
	pctB := regime.PercentB(closes, h.cfg.BBWindow, h.cfg.BBStdMult)
	pb := pctB[len(pctB)-1]

	signal := models.HedgeSignal{
		VIXClose:   math.Round(vixClose*100) / 100,
		Momentum5D: vixMomentum(closes),
	}
	if math.IsNaN(pb) {
		signal.State = models.HedgeNoData
		return signal
	}
	signal.PercentB = math.Round(pb*10000) / 10000
	signal.State = h.classify(vixClose, pb)
	return signal
}

// classify resolves the state ladder. Spike and entry both require the
// volatility level, exit fires on either condition.
func (h *HedgeSelector) classify(vixClose, pb float64) models.HedgeState {
	switch {
	case vixClose >= h.cfg.VIXEntryLevel && pb >= h.cfg.BBSpikeFloor:
		return models.HedgeSpike
	case vixClose >= h.cfg.VIXEntryLevel && pb >= h.cfg.BBEntryFloor:
		return models.HedgeEntry
	case vixClose < h.cfg.VIXExitLevel || pb < h.cfg.BBExitCeiling:
		return models.HedgeExit
	default:
		return models.HedgeNeutral
	}
}

func (h *HedgeSelector) rationale(symbol string, signal models.HedgeSignal) string {
	detail := fmt.Sprintf("VIX=%.2f, %%B=%.2f", signal.VIXClose, signal.PercentB)
	switch symbol {
	case "UVXY":
		return "VIX spike trade, above upper Bollinger band: " + detail
	case "TAIL":
		return "structural put hedge: " + detail
	case "CAOS":
		return "tail risk hedge: " + detail
	}
	return "volatility hedge: " + detail
}

// vixMomentum is the percent change over the trailing momentum lookback,
// zero when the series is too short.
func vixMomentum(closes []float64) float64 {
	if len(closes) < momentumLookbackDays+1 {
		return 0
	}
	past := closes[len(closes)-1-momentumLookbackDays]
	if past == 0 {
		return 0
	}
	m := closes[len(closes)-1]/past - 1.0
	return math.Round(m*10000) / 10000
}
