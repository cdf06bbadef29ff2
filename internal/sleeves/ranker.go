package sleeves

import (
	"fmt"
	"math"
	"sort"

	"github.com/cinar/indicator"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

const (
	trendGatePeriod = 200
	volLookbackDays = 63
	atrPeriod       = 14
	atrBufferMult   = 1.0
	slopeDays       = 10
	trendBonusPerPt = 0.25
	weightPrecision = 4
)

// Ranker runs the shared gate/score/select/weight pass for one sleeve.
type Ranker struct {
	def Definition
}

func NewRanker(def Definition) *Ranker {
	return &Ranker{def: def}
}

type candidate struct {
	inst     Instrument
	bars     []models.Bar
	returns  map[int]float64 // raw horizon returns, may hold NaN
	adjusted map[int]float64 // ranked returns, risk-adjusted when enabled
	vol      float64         // annualized, 0 when unavailable
	trend    trendStrength
	score    float64 // composite before trend bonus
	final    float64
}

// RankAndSelect resolves one sleeve against the loaded price history. It
// never fails: instruments without data are skipped with a warning and an
// empty selection is a valid outcome.
func (r *Ranker) RankAndSelect(history map[string][]models.Bar, budgeted float64, regime models.RegimeKey) models.SleeveResult {
	result := models.SleeveResult{
		Sleeve:           r.def.Sleeve,
		BudgetedFraction: budgeted,
		RealizedFraction: budgeted,
		Weights:          map[string]float64{},
	}

	instruments := r.eligibleInstruments(regime, &result)
	structural := r.structuralDowntrend(history)
	result.StructuralDowntrend = structural

	var candidates []*candidate
	for _, inst := range instruments {
		bars := history[inst.Symbol]
		if len(bars) == 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: no price history, skipped", inst.Symbol))
			continue
		}

		if r.def.TrendGate && !r.passesTrendGate(inst.Symbol, bars, structural, &result) {
			continue
		}

		c := &candidate{inst: inst, bars: bars, returns: map[int]float64{}, adjusted: map[int]float64{}}

		if r.def.TrendOverlay {
			c.trend = evaluateTrend(bars)
			if c.trend.score == 0 {
				logger.Debug("excluded, no positive trend signals",
					zap.String("sleeve", string(r.def.Sleeve)), zap.String("symbol", inst.Symbol))
				continue
			}
		}

		closes := models.Closes(bars)
		for _, h := range r.def.Horizons {
			c.returns[h.Days] = periodReturn(closes, h.Days)
		}

		if r.def.RiskAdjusted {
			if vol, ok := annualizedVol(closes, volLookbackDays); ok {
				c.vol = vol
			} else {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s: realized vol unavailable, ranking on raw returns", inst.Symbol))
			}
		}
		for days, ret := range c.returns {
			if r.def.RiskAdjusted && c.vol > 0 && !math.IsNaN(ret) {
				c.adjusted[days] = ret / c.vol
			} else {
				c.adjusted[days] = ret
			}
		}

		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		logger.Warn("sleeve has no eligible candidates",
			zap.String("sleeve", string(r.def.Sleeve)))
		return result
	}

	r.scoreCandidates(candidates)

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].final != candidates[j].final {
			return candidates[i].final > candidates[j].final
		}
		return candidates[i].inst.Symbol < candidates[j].inst.Symbol
	})

	candidates = applyExclusivePairs(candidates, r.def.ExclusivePairs)
	selected := r.applyCaps(candidates)

	scores := make([]float64, len(selected))
	for i, c := range selected {
		scores[i] = c.final
	}
	weights := positionWeights(scores, r.def.WeightFloor)

	for i, c := range selected {
		result.Selected = append(result.Selected, c.toModel(i+1, r.def.Horizons))
		result.Weights[c.inst.Symbol] = weights[i]
	}

	logger.Info("sleeve ranked",
		zap.String("sleeve", string(r.def.Sleeve)),
		zap.Strings("selected", result.Symbols()),
		zap.Float64("budgeted_fraction", budgeted))
	return result
}

// eligibleInstruments applies the per-regime whitelist when the definition
// carries one.
func (r *Ranker) eligibleInstruments(regime models.RegimeKey, result *models.SleeveResult) []Instrument {
	if r.def.RegimeEligible == nil {
		return r.def.Instruments
	}
	allowed, ok := r.def.RegimeEligible[regime]
	if !ok {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no eligibility mapping for regime %s, using all symbols", regime))
		result.Eligible = r.def.Symbols()
		return r.def.Instruments
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = true
	}
	var out []Instrument
	for _, inst := range r.def.Instruments {
		if allowedSet[inst.Symbol] {
			out = append(out, inst)
			result.Eligible = append(result.Eligible, inst.Symbol)
		}
	}
	return out
}

// structuralDowntrend reports whether every anchor with enough history sits
// below its 200-bar average. Sleeves without anchors never trigger it.
func (r *Ranker) structuralDowntrend(history map[string][]models.Bar) bool {
	if len(r.def.Anchors) == 0 {
		return false
	}
	for _, sym := range r.def.Anchors {
		bars := history[sym]
		if len(bars) < trendGatePeriod {
			continue
		}
		closes := models.Closes(bars)
		if sma, ok := lastSMA(closes, trendGatePeriod); ok && closes[len(closes)-1] > sma {
			return false
		}
	}
	logger.Info("structural downtrend detected, short-history bypass revoked",
		zap.String("sleeve", string(r.def.Sleeve)))
	return true
}

func (r *Ranker) passesTrendGate(symbol string, bars []models.Bar, structural bool, result *models.SleeveResult) bool {
	closes := models.Closes(bars)
	if len(bars) < trendGatePeriod {
		// Only sleeves with configured anchors let short-history
		// instruments through, and a structural downtrend revokes that.
		if len(r.def.Anchors) == 0 {
			logger.Debug("excluded, insufficient history for the 200-bar gate",
				zap.String("sleeve", string(r.def.Sleeve)), zap.String("symbol", symbol),
				zap.Int("bars", len(bars)))
			return false
		}
		if structural {
			logger.Info("excluded, short-history bypass blocked by structural downtrend",
				zap.String("sleeve", string(r.def.Sleeve)), zap.String("symbol", symbol))
			return false
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s: only %d bars, below the 200-bar gate minimum, including anyway", symbol, len(bars)))
		return true
	}
	sma, ok := lastSMA(closes, trendGatePeriod)
	if !ok {
		return false
	}
	if closes[len(closes)-1] <= sma {
		logger.Debug("excluded, below 200-bar average",
			zap.String("sleeve", string(r.def.Sleeve)), zap.String("symbol", symbol),
			zap.Float64("close", closes[len(closes)-1]), zap.Float64("sma200", sma))
		return false
	}
	return true
}

// scoreCandidates builds the rank-inverted composite. Each horizon column
// is ranked independently, ties share the best rank, NaN stays unranked
// and contributes zero.
func (r *Ranker) scoreCandidates(candidates []*candidate) {
	n := len(candidates)
	for _, h := range r.def.Horizons {
		for _, c := range candidates {
			v := c.adjusted[h.Days]
			if math.IsNaN(v) {
				continue
			}
			rank := 1
			for _, other := range candidates {
				ov := other.adjusted[h.Days]
				if !math.IsNaN(ov) && ov > v {
					rank++
				}
			}
			c.score += float64(n+1-rank) * h.Weight
		}
	}
	for _, c := range candidates {
		c.final = c.score
		if r.def.TrendOverlay {
			c.final += float64(c.trend.score) * trendBonusPerPt
		}
	}
}

// applyExclusivePairs drops the lower-ranked member of each pair from an
// already sorted candidate list.
func applyExclusivePairs(candidates []*candidate, pairs [][2]string) []*candidate {
	if len(pairs) == 0 {
		return candidates
	}
	excluded := map[string]bool{}
	for _, pair := range pairs {
		found := false
		for _, c := range candidates {
			if c.inst.Symbol != pair[0] && c.inst.Symbol != pair[1] {
				continue
			}
			if found {
				excluded[c.inst.Symbol] = true
			}
			found = true
		}
	}
	if len(excluded) == 0 {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if !excluded[c.inst.Symbol] {
			out = append(out, c)
		}
	}
	return out
}

// applyCaps takes the top K in score order, skipping candidates whose
// subgroup already hit its cap.
func (r *Ranker) applyCaps(candidates []*candidate) []*candidate {
	perSubgroup := map[string]int{}
	var out []*candidate
	for _, c := range candidates {
		if r.def.TopK > 0 && len(out) >= r.def.TopK {
			break
		}
		if r.def.SubgroupCap > 0 && c.inst.Subgroup != "" &&
			perSubgroup[c.inst.Subgroup] >= r.def.SubgroupCap {
			continue
		}
		perSubgroup[c.inst.Subgroup]++
		out = append(out, c)
	}
	return out
}

func (c *candidate) toModel(rank int, horizons []Horizon) models.Candidate {
	out := models.Candidate{
		Symbol:         c.inst.Symbol,
		Subgroup:       c.inst.Subgroup,
		Returns:        c.returns,
		ReturnsPct:     map[string]float64{},
		CompositeScore: round4(c.final),
		TrendScore:     c.trend.score,
		Rank:           rank,
	}
	if c.vol > 0 {
		out.AnnualizedVol = math.Round(c.vol*10000) / 100
	}
	for _, h := range horizons {
		if ret := c.returns[h.Days]; !math.IsNaN(ret) {
			out.ReturnsPct[fmt.Sprintf("%dd", h.Days)] = math.Round(ret*10000) / 100
		}
	}
	return out
}

// positionWeights derives score-proportional position weights. Each
// position is guaranteed the floor; the remainder is split by score. The
// rounding residual lands on the first position so the set sums to exactly
// one.
func positionWeights(scores []float64, floor float64) []float64 {
	n := len(scores)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return []float64{1.0}
	}

	weights := make([]float64, n)
	total := 0.0
	for _, s := range scores {
		if s > 0 {
			total += s
		}
	}
	switch {
	case floor*float64(n) >= 1.0 || total <= 0:
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
	default:
		remainder := 1.0 - floor*float64(n)
		for i, s := range scores {
			weights[i] = floor
			if s > 0 {
				weights[i] += remainder * s / total
			}
		}
	}

	sum := decimal.Zero
	for i, w := range weights {
		d := decimal.NewFromFloat(w).Round(weightPrecision)
		weights[i], _ = d.Float64()
		sum = sum.Add(d)
	}
	correction := decimal.NewFromInt(1).Sub(sum)
	first := decimal.NewFromFloat(weights[0]).Add(correction)
	weights[0], _ = first.Float64()
	return weights
}

// periodReturn is the simple return over the trailing window, NaN when the
// series is too short or the base price is unusable.
func periodReturn(closes []float64, days int) float64 {
	if len(closes) < days {
		return math.NaN()
	}
	current := closes[len(closes)-1]
	past := closes[len(closes)-days]
	if past == 0 || math.IsNaN(current) || math.IsNaN(past) {
		return math.NaN()
	}
	return current/past - 1.0
}

// annualizedVol is the annualized standard deviation of daily log returns
// over the trailing lookback.
func annualizedVol(closes []float64, lookback int) (float64, bool) {
	if len(closes) < lookback+1 {
		return 0, false
	}
	rets := make([]float64, 0, lookback)
	for i := len(closes) - lookback; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return 0, false
		}
		rets = append(rets, math.Log(closes[i]/closes[i-1]))
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)
	daily := math.Sqrt(variance)
	if daily == 0 || math.IsNaN(daily) {
		return 0, false
	}
	return daily * math.Sqrt(252), true
}

func lastSMA(values []float64, period int) (float64, bool) {
	if len(values) < period {
		return 0, false
	}
	sma := indicator.Sma(period, values)
	return sma[len(sma)-1], true
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
