package ai

import (
	"fmt"
	"math"
	"strings"

	"github.com/cinar/indicator"

	"github.com/apershukov/allocator/pkg/models"
)

const systemPromptTemplate = `You are a market regime analyst. You will receive a structured data snapshot
of current market conditions. Your job is to:

1. REGIME ASSESSMENT: State the current market regime in one sentence.
   Use one of: Risk-On, Moderate Caution, Elevated Risk, Risk-Off, Crisis.

2. RULE DIVERGENCE: The rule-based system says "{rule_regime}".
   Do you agree? If not, explain why in 1-2 sentences.

3. KEY RISKS: What are the top 1-2 risks visible in this data?
   Focus on divergences, trend changes, or unusual readings.

4. WATCH LIST: What specific data point would change your assessment
   if it moved? (e.g., "If MMFI drops below 50%, this becomes Risk-Off")

5. CONFIDENCE: High / Medium / Low - and one sentence why.

Be concise. Total response should be under 200 words.`

func systemPrompt(ruleRegime models.RegimeColor) string {
	return strings.Replace(systemPromptTemplate, "{rule_regime}", string(ruleRegime), 1)
}

// BuildSnapshot renders the compact market summary sent to the model. Inputs
// that are missing or too short are simply left out of the snapshot.
func BuildSnapshot(history map[string][]models.Bar, regime models.RegimeSnapshot, sleeves map[models.Sleeve]models.SleeveResult) string {
	var lines []string

	appendLine := func(s string) {
		if s != "" {
			lines = append(lines, s)
		}
	}

	spx := history["SPX"]
	appendLine(formatPriceVsMA(spx, "SPX"))
	if rets := formatReturns(spx, []returnPeriod{{"1d", 1}, {"5d", 5}, {"20d", 20}}); rets != "" {
		appendLine("SPX returns: " + rets)
	}

	appendLine(formatVIXDetail(history["VIX"]))
	appendLine(formatBreadth(history))
	appendLine(formatADRatio(history["ADRN"]))
	appendLine(formatTermStructure(history["VIX"], history["VIX3M"]))
	appendLine(formatYieldCurve(history["US02Y"], history["US10Y"]))

	if gold := formatPriceVsMA(history["GLD"], "Gold"); gold != "" {
		if rets := formatReturns(history["GLD"], []returnPeriod{{"1mo", 21}}); rets != "" {
			gold += " (" + rets + ")"
		}
		appendLine(gold)
	}
	if btc := formatPriceVsMA(history["IBIT"], "BTC proxy"); btc != "" {
		if rets := formatReturns(history["IBIT"], []returnPeriod{{"1mo", 21}}); rets != "" {
			btc += " (" + rets + ")"
		}
		appendLine(btc)
	}

	appendLine(fmt.Sprintf("Rule-based regime: %s | SPX above 200MA: %t | VIX close: %.2f",
		regime.Color, regime.AboveLongMA, regime.VIXClose))

	appendLine(formatPicks(sleeves))

	return strings.Join(lines, "\n")
}

type returnPeriod struct {
	label string
	days  int
}

func formatPriceVsMA(bars []models.Bar, label string) string {
	if len(bars) == 0 {
		return ""
	}
	closes := models.Closes(bars)
	last := closes[len(closes)-1]

	if len(closes) >= 200 {
		sma := indicator.Sma(200, closes)
		ma := sma[len(sma)-1]
		if ma != 0 {
			pct := (last/ma - 1) * 100
			direction := "above"
			if pct < 0 {
				direction = "below"
			}
			return fmt.Sprintf("%s: %.2f (%.1f%% %s 200DMA at %.2f)", label, last, math.Abs(pct), direction, ma)
		}
	}

	return fmt.Sprintf("%s: %.2f", label, last)
}

func formatReturns(bars []models.Bar, periods []returnPeriod) string {
	if len(bars) == 0 {
		return ""
	}
	closes := models.Closes(bars)
	last := closes[len(closes)-1]

	var parts []string
	for _, p := range periods {
		if len(closes) > p.days {
			past := closes[len(closes)-1-p.days]
			if past != 0 {
				ret := (last/past - 1) * 100
				parts = append(parts, fmt.Sprintf("%s %+.1f%%", p.label, ret))
			}
		}
	}

	return strings.Join(parts, ", ")
}

func formatVIXDetail(bars []models.Bar) string {
	if len(bars) == 0 {
		return ""
	}
	closes := models.Closes(bars)
	vix := closes[len(closes)-1]
	if len(closes) < 20 {
		return fmt.Sprintf("VIX: %.1f", vix)
	}

	sma := indicator.Sma(20, closes)
	std := indicator.Std(20, closes)
	sma20 := sma[len(sma)-1]
	std20 := std[len(std)-1]

	if std20 > 0 {
		pctB := (vix - (sma20 - 2*std20)) / (4 * std20)
		trend := "falling"
		if vix > closes[len(closes)-5] {
			trend = "rising"
		}
		return fmt.Sprintf("VIX: %.1f (SMA20: %.1f, %%B: %.2f, %s)", vix, sma20, pctB, trend)
	}

	return fmt.Sprintf("VIX: %.1f (SMA20: %.1f)", vix, sma20)
}

func formatBreadth(history map[string][]models.Bar) string {
	var parts []string
	for _, symbol := range []string{"MMTH", "MMFI", "MMTW"} {
		bars := history[symbol]
		if len(bars) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %.0f%%", symbol, bars[len(bars)-1].CloseF()))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Breadth: " + strings.Join(parts, ", ")
}

func formatADRatio(bars []models.Bar) string {
	if len(bars) < 5 {
		return ""
	}
	closes := models.Closes(bars)
	current := closes[len(closes)-1]

	sum := 0.0
	for _, v := range closes[len(closes)-5:] {
		sum += v
	}
	avg := sum / 5

	trend := "declining"
	if current > avg {
		trend = "rising"
	}
	return fmt.Sprintf("NYSE AD ratio: %.2f (5-day avg: %.2f, %s)", current, avg, trend)
}

func formatTermStructure(vix, vix3m []models.Bar) string {
	if len(vix) == 0 || len(vix3m) == 0 {
		return ""
	}
	v := vix[len(vix)-1].CloseF()
	v3m := vix3m[len(vix3m)-1].CloseF()
	if v3m == 0 {
		return ""
	}

	ratio := v / v3m
	structure := "contango"
	if ratio > 1.0 {
		structure = "backwardation"
	}
	return fmt.Sprintf("VIX term structure: VIX/VIX3M = %.2f (%s)", ratio, structure)
}

func formatYieldCurve(us02y, us10y []models.Bar) string {
	if len(us02y) == 0 || len(us10y) == 0 {
		return ""
	}
	y2 := us02y[len(us02y)-1].CloseF()
	y10 := us10y[len(us10y)-1].CloseF()
	spread := y10 - y2

	lookback := 126
	if len(us10y)-1 < lookback {
		lookback = len(us10y) - 1
	}
	if len(us02y)-1 < lookback {
		lookback = len(us02y) - 1
	}
	if lookback > 20 {
		old := us10y[len(us10y)-lookback].CloseF() - us02y[len(us02y)-lookback].CloseF()
		direction := "flattening"
		if spread > old {
			direction = "steepening"
		}
		return fmt.Sprintf("10Y-2Y spread: %+.2f%% (%s, was %+.2f%% ~6mo ago)", spread, direction, old)
	}

	return fmt.Sprintf("10Y-2Y spread: %+.2f%%", spread)
}

func formatPicks(sleeves map[models.Sleeve]models.SleeveResult) string {
	var parts []string
	for _, sleeve := range models.AllSleeves {
		result, ok := sleeves[sleeve]
		if !ok || len(result.Selected) == 0 {
			continue
		}
		symbols := result.Symbols()
		if len(symbols) > 4 {
			symbols = symbols[:4]
		}
		parts = append(parts, fmt.Sprintf("%s: %s", sleeve, strings.Join(symbols, ", ")))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Current picks: " + strings.Join(parts, " | ")
}

// assessmentLabels is checked in order; the first match wins.
var assessmentLabels = []struct {
	keyword string
	label   string
}{
	{"risk-on", "Risk-On"},
	{"moderate caution", "Moderate Caution"},
	{"elevated risk", "Elevated Risk"},
	{"risk-off", "Risk-Off"},
	{"crisis", "Crisis"},
}

// parseResponse extracts the regime label and confidence from the free-text
// model reply. Extraction is best effort; the raw text is always kept.
func parseResponse(text string) *models.Opinion {
	opinion := &models.Opinion{Raw: text}
	lower := strings.ToLower(text)

	for _, entry := range assessmentLabels {
		if strings.Contains(lower, entry.keyword) {
			opinion.Assessment = entry.label
			break
		}
	}

	for _, level := range []string{"high", "medium", "low"} {
		if strings.Contains(lower, "confidence: "+level) || strings.Contains(lower, "confidence - "+level) {
			opinion.Confidence = strings.ToUpper(level[:1]) + level[1:]
			break
		}
	}

	return opinion
}
