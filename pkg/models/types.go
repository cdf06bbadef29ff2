package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewDecimal creates decimal from float64
func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// Bar represents one daily OHLCV bar.
type Bar struct {
	Symbol string          `json:"symbol,omitempty" db:"symbol"`
	Date   time.Time       `json:"date" db:"bar_date"`
	Open   decimal.Decimal `json:"open" db:"open"`
	High   decimal.Decimal `json:"high" db:"high"`
	Low    decimal.Decimal `json:"low" db:"low"`
	Close  decimal.Decimal `json:"close" db:"close"`
	Volume decimal.Decimal `json:"volume" db:"volume"`
}

// CloseF returns the close as float64 for statistics code.
func (b Bar) CloseF() float64 {
	return b.Close.InexactFloat64()
}

// HighF returns the high as float64.
func (b Bar) HighF() float64 {
	return b.High.InexactFloat64()
}

// LowF returns the low as float64.
func (b Bar) LowF() float64 {
	return b.Low.InexactFloat64()
}

// Closes extracts the close column from a bar series.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.CloseF()
	}
	return out
}

// Sleeve identifies one asset-class bucket.
type Sleeve string

const (
	SleeveEquity         Sleeve = "equity"
	SleeveFixedIncome    Sleeve = "fixed_income"
	SleeveCommodities    Sleeve = "commodities"
	SleeveCrypto         Sleeve = "crypto"
	SleeveManagedFutures Sleeve = "managed_futures"
	SleeveAlternatives   Sleeve = "alternatives"
)

// AllSleeves lists every sleeve in canonical display order.
var AllSleeves = []Sleeve{
	SleeveEquity,
	SleeveManagedFutures,
	SleeveCommodities,
	SleeveFixedIncome,
	SleeveCrypto,
	SleeveAlternatives,
}

// RegimeColor is the discrete background classification of the market.
type RegimeColor string

const (
	ColorGreen  RegimeColor = "green"
	ColorYellow RegimeColor = "yellow"
	ColorOrange RegimeColor = "orange"
	ColorRed    RegimeColor = "red"
)

// RegimeKey selects a row of the allocation table.
type RegimeKey string

const (
	KeyRiskOn       RegimeKey = "risk_on"
	KeyModerateRisk RegimeKey = "moderate_risk"
	KeyElevatedRisk RegimeKey = "elevated_risk"
	KeyRiskOff      RegimeKey = "risk_off"
	KeyCrisis       RegimeKey = "crisis"
)

// SignalValue holds one named regime signal reading. Exactly one of Bool
// and Count is meaningful, indicated by Kind.
type SignalValue struct {
	Kind  string `json:"kind"` // "bool" or "count"
	Bool  bool   `json:"bool,omitempty"`
	Count int    `json:"count,omitempty"`
}

// BoolSignal wraps a boolean reading.
func BoolSignal(v bool) SignalValue { return SignalValue{Kind: "bool", Bool: v} }

// CountSignal wraps an integer reading.
func CountSignal(n int) SignalValue { return SignalValue{Kind: "count", Count: n} }

// RegimeSnapshot is the classified market regime for one run. Built once by
// the signal engine and immutable afterwards.
type RegimeSnapshot struct {
	AsOf        time.Time              `json:"as_of"`
	Color       RegimeColor            `json:"color"`
	AboveLongMA bool                   `json:"above_long_ma"`
	VIXClose    float64                `json:"vix_close"`
	Signals     map[string]SignalValue `json:"signals,omitempty"`
}

// AllocationVector maps each sleeve to its budgeted capital fraction.
type AllocationVector map[Sleeve]float64

// Clone returns an independent copy of the vector.
func (v AllocationVector) Clone() AllocationVector {
	out := make(AllocationVector, len(v))
	for k, f := range v {
		out[k] = f
	}
	return out
}

// Candidate is one scored instrument inside a sleeve ranking pass.
type Candidate struct {
	Symbol         string             `json:"symbol"`
	Subgroup       string             `json:"subgroup,omitempty"`
	Returns        map[int]float64    `json:"-"` // horizon (trading days) -> return, may hold NaN
	ReturnsPct     map[string]float64 `json:"returns_pct,omitempty"`
	CompositeScore float64            `json:"composite_score"`
	TrendScore     int                `json:"trend_score,omitempty"`
	AnnualizedVol  float64            `json:"annualized_vol,omitempty"`
	Rank           int                `json:"rank"`
	Rationale      string             `json:"rationale,omitempty"`
}

// SleeveResult is the outcome of one sleeve's ranking/selection pass.
type SleeveResult struct {
	Sleeve              Sleeve             `json:"sleeve"`
	BudgetedFraction    float64            `json:"budgeted_fraction"`
	RealizedFraction    float64            `json:"realized_fraction"`
	Selected            []Candidate        `json:"selected"`
	Weights             map[string]float64 `json:"weights"`
	Eligible            []string           `json:"eligible_symbols,omitempty"`
	StructuralDowntrend bool               `json:"structural_downtrend,omitempty"`
	HedgeSignal         *HedgeSignal       `json:"hedge_signal,omitempty"`
	Warnings            []string           `json:"warnings,omitempty"`
}

// Symbols returns the selected symbols in rank order.
func (r SleeveResult) Symbols() []string {
	out := make([]string, 0, len(r.Selected))
	for _, c := range r.Selected {
		out = append(out, c.Symbol)
	}
	return out
}

// HedgeState names the volatility-hedge state machine states.
type HedgeState string

const (
	HedgeNoData  HedgeState = "no_data"
	HedgeSpike   HedgeState = "spike"
	HedgeEntry   HedgeState = "entry"
	HedgeExit    HedgeState = "exit"
	HedgeNeutral HedgeState = "neutral"
)

// Active reports whether the state deploys capital.
func (s HedgeState) Active() bool {
	return s == HedgeSpike || s == HedgeEntry
}

// HedgeSignal captures the volatility reading behind the hedge decision.
type HedgeSignal struct {
	State      HedgeState `json:"state"`
	VIXClose   float64    `json:"vix_close"`
	PercentB   float64    `json:"percent_b"`
	Momentum5D float64    `json:"momentum_5d"`
}

// CorrelationMatrix is a symbol-labelled square matrix.
type CorrelationMatrix struct {
	LookbackDays int         `json:"lookback_days"`
	Symbols      []string    `json:"symbols"`
	SleeveLabels []Sleeve    `json:"sleeve_labels"`
	Matrix       [][]float64 `json:"matrix"`
}

// WorstDay is one row of the stress-day decomposition.
type WorstDay struct {
	Date            string             `json:"date"`
	PortfolioReturn float64            `json:"portfolio_return"`
	Returns         map[string]float64 `json:"returns"`
}

// StressCorrelation is correlation restricted to the worst synthetic
// portfolio days.
type StressCorrelation struct {
	CorrelationMatrix
	NWorstDays      int        `json:"n_worst_days"`
	ThresholdReturn float64    `json:"threshold_return"`
	WorstDays       []WorstDay `json:"worst_days"`
}

// DrawdownStats summarizes the drawdown profile of one return series. All
// drawdown values are <= 0.
type DrawdownStats struct {
	MaxDrawdown6Mo  float64 `json:"max_drawdown_6mo"`
	MaxDrawdown1Yr  float64 `json:"max_drawdown_1yr"`
	CurrentDrawdown float64 `json:"current_drawdown"`
	PeakDate        string  `json:"peak_date"`
	TroughDate      string  `json:"trough_date"`
	RecoveryDays    *int    `json:"recovery_days"`
}

// PortfolioAnalytics aggregates cross-sleeve risk analytics. Nil sub-blocks
// mean insufficient data for that block.
type PortfolioAnalytics struct {
	Correlation       *CorrelationMatrix `json:"correlation,omitempty"`
	StressCorrelation *StressCorrelation `json:"stress_correlation,omitempty"`
	Drawdowns         *DrawdownReport    `json:"drawdowns,omitempty"`
}

// DrawdownReport holds per-sleeve and portfolio-level drawdown stats.
type DrawdownReport struct {
	BySleeve  map[Sleeve]DrawdownStats `json:"by_sleeve"`
	Portfolio *DrawdownStats           `json:"portfolio"`
}

// Opinion is the optional model-generated second view on the regime. When
// the external service is unavailable the stage degrades to Skipped=true.
type Opinion struct {
	Skipped    bool   `json:"skipped"`
	Reason     string `json:"reason,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Assessment string `json:"assessment,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Raw        string `json:"raw,omitempty"`
	Snapshot   string `json:"snapshot,omitempty"`
}

// ChangeSet is the ordered day-over-day difference list.
type ChangeSet struct {
	FirstRun bool     `json:"first_run"`
	Changes  []string `json:"changes"`
	Summary  string   `json:"summary"`
}

// Decision is the root object produced by one pipeline run.
type Decision struct {
	AsOf        time.Time               `json:"as_of"`
	Regime      RegimeSnapshot          `json:"regime"`
	RegimeKey   RegimeKey               `json:"regime_key"`
	Allocation  AllocationVector        `json:"allocation"`
	Sleeves     map[Sleeve]SleeveResult `json:"sleeves"`
	Analytics   *PortfolioAnalytics     `json:"analytics,omitempty"`
	Opinion     *Opinion                `json:"opinion,omitempty"`
	Changes     *ChangeSet              `json:"changes,omitempty"`
	Stale       bool                    `json:"stale,omitempty"`
	Warnings    []string                `json:"warnings,omitempty"`
}
