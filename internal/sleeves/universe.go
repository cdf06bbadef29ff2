package sleeves

import "github.com/apershukov/allocator/pkg/models"

// Instrument is one rankable symbol, optionally tagged with the subgroup it
// belongs to inside its sleeve.
type Instrument struct {
	Symbol   string
	Subgroup string
}

// Horizon is one momentum lookback in trading days and its weight in the
// composite score.
type Horizon struct {
	Days   int
	Weight float64
}

// Definition describes one sleeve's universe and ranking policy.
type Definition struct {
	Sleeve      models.Sleeve
	Instruments []Instrument
	Horizons    []Horizon

	// TopK caps the selection size, 0 keeps everything that ranks.
	TopK int
	// SubgroupCap limits how many instruments the same subgroup can place,
	// 0 disables the cap.
	SubgroupCap int
	// WeightFloor is the minimum position weight inside the sleeve.
	WeightFloor float64

	// TrendGate requires the last close above the 200-bar moving average.
	// Instruments with fewer than 200 bars pass anyway with a warning
	// unless the anchors say the whole sleeve is in a downtrend.
	TrendGate bool
	// Anchors are the symbols whose joint 200-bar downtrend revokes the
	// short-history bypass.
	Anchors []string

	// RiskAdjusted divides horizon returns by 63-day annualized volatility
	// before ranking, to compare instruments with very different vol
	// profiles.
	RiskAdjusted bool
	// TrendOverlay adds the moving-average trend-strength score used by
	// trend-following funds: instruments with zero positive trend signals
	// are excluded and the score earns a ranking bonus.
	TrendOverlay bool

	// ExclusivePairs keeps only the higher-ranked member of each pair.
	ExclusivePairs [][2]string

	// RegimeEligible, when set, replaces the trend gate with a per-regime
	// whitelist of symbols.
	RegimeEligible map[models.RegimeKey][]string
}

const defaultWeightFloor = 0.10

// Momentum lookbacks in trading days.
const (
	horizon1Mo  = 21
	horizon3Mo  = 63
	horizon6Mo  = 126
	horizon12Mo = 252
)

// EquityDefinition covers the equity sub-modules: US large cap, ex-US,
// small caps, total market and thematic ETFs. Sector ETFs stay out of the
// default universe.
func EquityDefinition() Definition {
	return Definition{
		Sleeve: models.SleeveEquity,
		Instruments: []Instrument{
			{"SPY", "us_large_cap"}, {"QQQ", "us_large_cap"}, {"NTSX", "us_large_cap"},
			{"SCHD", "us_large_cap"}, {"USMV", "us_large_cap"}, {"RSP", "us_large_cap"},
			{"CWI", "ex_us"}, {"EEM", "ex_us"}, {"DFIV", "ex_us"}, {"FXI", "ex_us"},
			{"IWM", "small_caps"}, {"AVUV", "small_caps"},
			{"VTI", "total_market"},
			{"CHAT", "custom_etfs"}, {"TOPT", "custom_etfs"}, {"MAGS", "custom_etfs"}, {"BRK-B", "custom_etfs"},
		},
		Horizons: []Horizon{
			{horizon1Mo, 0.40}, {horizon3Mo, 0.30}, {horizon6Mo, 0.20}, {horizon12Mo, 0.10},
		},
		TopK:        4,
		SubgroupCap: 2,
		WeightFloor: defaultWeightFloor,
		TrendGate:   true,
	}
}

// CommoditiesDefinition ranks commodity ETFs on risk-adjusted momentum.
// GLD/GDX and SLV/SIL track the same underlying metal, so only the higher
// ranked of each pair is kept.
func CommoditiesDefinition() Definition {
	return Definition{
		Sleeve: models.SleeveCommodities,
		Instruments: []Instrument{
			{Symbol: "DBC"}, {Symbol: "GLD"}, {Symbol: "SLV"}, {Symbol: "GDX"},
			{Symbol: "SIL"}, {Symbol: "COPX"}, {Symbol: "URNM"}, {Symbol: "USO"}, {Symbol: "DBA"},
		},
		Horizons: []Horizon{
			{horizon1Mo, 0.50}, {horizon3Mo, 0.30}, {horizon6Mo, 0.20},
		},
		TopK:           4,
		WeightFloor:    defaultWeightFloor,
		TrendGate:      true,
		RiskAdjusted:   true,
		ExclusivePairs: [][2]string{{"GLD", "GDX"}, {"SLV", "SIL"}},
	}
}

// CryptoDefinition uses raw short-horizon momentum. All crypto ETFs carry
// similar volatility, so risk adjustment would add noise. The spot BTC/ETH
// funds anchor the structural-downtrend check so young listings cannot
// sneak in through the short-history bypass during a crypto bear.
func CryptoDefinition() Definition {
	return Definition{
		Sleeve: models.SleeveCrypto,
		Instruments: []Instrument{
			{Symbol: "IBIT"}, {Symbol: "ETHA"}, {Symbol: "BITO"}, {Symbol: "NODE"},
		},
		Horizons: []Horizon{
			{horizon1Mo, 0.60}, {horizon3Mo, 0.40},
		},
		WeightFloor: defaultWeightFloor,
		TrendGate:   true,
		Anchors:     []string{"IBIT", "ETHA", "BITO"},
	}
}

// ManagedFuturesDefinition ranks trend-following funds. The ATR-buffered
// moving-average overlay filters out funds with no positive trend signal
// and rewards strong trends with a score bonus.
func ManagedFuturesDefinition() Definition {
	return Definition{
		Sleeve: models.SleeveManagedFutures,
		Instruments: []Instrument{
			{Symbol: "KMLM"}, {Symbol: "DBMF"}, {Symbol: "CTA"}, {Symbol: "WTMF"}, {Symbol: "FMF"},
		},
		Horizons: []Horizon{
			{horizon1Mo, 0.50}, {horizon3Mo, 0.30}, {horizon6Mo, 0.20},
		},
		TopK:         3,
		WeightFloor:  defaultWeightFloor,
		RiskAdjusted: true,
		TrendOverlay: true,
	}
}

// FixedIncomeDefinition trades the 200-bar gate for regime eligibility.
// Strong economies keep long duration out because rates may rise; flight to
// quality regimes want it most.
func FixedIncomeDefinition() Definition {
	return Definition{
		Sleeve: models.SleeveFixedIncome,
		Instruments: []Instrument{
			{Symbol: "TLT"}, {Symbol: "SGOV"}, {Symbol: "TIP"}, {Symbol: "AGG"},
		},
		Horizons: []Horizon{
			{horizon1Mo, 0.50}, {horizon3Mo, 0.30}, {horizon6Mo, 0.20},
		},
		WeightFloor: defaultWeightFloor,
		RegimeEligible: map[models.RegimeKey][]string{
			models.KeyRiskOn:       {"SGOV", "AGG", "TIP"},
			models.KeyModerateRisk: {"SGOV", "AGG", "TIP"},
			models.KeyElevatedRisk: {"SGOV", "AGG", "TIP", "TLT"},
			models.KeyRiskOff:      {"TLT", "AGG", "TIP", "SGOV"},
			models.KeyCrisis:       {"TLT", "AGG", "TIP", "SGOV"},
		},
	}
}

// HedgeInstruments are the volatility-hedge vehicles in priority order.
// The first entry is the pure-spike vehicle and only deploys while the
// volatility index sits above its upper Bollinger band.
var HedgeInstruments = []string{"UVXY", "TAIL", "CAOS"}

// RankedDefinitions returns the sleeve definitions handled by the shared
// ranker, in canonical sleeve order. The alternatives sleeve runs through
// the hedge selector instead.
func RankedDefinitions() []Definition {
	return []Definition{
		EquityDefinition(),
		ManagedFuturesDefinition(),
		CommoditiesDefinition(),
		FixedIncomeDefinition(),
		CryptoDefinition(),
	}
}

// Symbols lists every symbol a definition can touch.
func (d Definition) Symbols() []string {
	out := make([]string, 0, len(d.Instruments))
	for _, inst := range d.Instruments {
		out = append(out, inst.Symbol)
	}
	return out
}
