package regime

import (
	"fmt"
	"time"

	"github.com/cinar/indicator"
	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// Signal field names reported on the snapshot.
const (
	SignalBreadthZScore = "breadth_zscore"
	SignalSlowCross     = "breadth_slow_cross"
	SignalMediumCross   = "breadth_medium_cross"
	SignalFastCross     = "breadth_fast_cross"
	SignalVolExit       = "vol_bollinger_exit"
	SignalCombinedCount = "combined_below_count"
)

// Classifier folds signal-engine output into one RegimeSnapshot.
type Classifier struct {
	cfg *config.RegimeConfig
}

// NewClassifier creates a classifier with the given signal parameters.
func NewClassifier(cfg *config.RegimeConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify runs every configured signal against the aligned frame and
// returns the snapshot for the frame's last date. The index series is the
// only hard requirement; missing auxiliary series degrade the affected
// signal with a warning.
func (c *Classifier) Classify(frame *Frame, asOf time.Time) (models.RegimeSnapshot, error) {
	index, ok := frame.Column(c.cfg.IndexSymbol)
	if !ok || len(index) == 0 {
		return models.RegimeSnapshot{}, fmt.Errorf("regime input %s is absent", c.cfg.IndexSymbol)
	}

	snapshot := models.RegimeSnapshot{
		AsOf:    asOf,
		Color:   models.ColorGreen,
		Signals: make(map[string]models.SignalValue),
	}

	snapshot.AboveLongMA = c.aboveLongMA(index)

	if vix, ok := frame.Column(c.cfg.VIXSymbol); ok && len(vix) > 0 {
		snapshot.VIXClose = vix[len(vix)-1]

		if len(vix) >= c.cfg.VolExitWindow {
			exit := VolatilityExit(vix, c.cfg.VolExitWindow, c.cfg.VolExitStdDev, c.cfg.VolExitPctBFloor)
			snapshot.Signals[SignalVolExit] = models.BoolSignal(last(exit))
		}
	} else {
		logger.Warn("VIX series unavailable, snapshot carries no volatility close",
			zap.String("symbol", c.cfg.VIXSymbol))
	}

	// Breadth z-score is the risk-off override: when it reads risk-off the
	// background is red regardless of the combined count.
	zscoreRiskOn := true
	if ratio, ok := frame.Column(c.cfg.ADRatioSymbol); ok && len(ratio) >= c.cfg.ZScoreLookback {
		signal, _ := CumulativeBreadthZScore(ratio,
			c.cfg.ZScoreSmoothing, c.cfg.ZScoreLookback,
			c.cfg.ZScoreThreshold, c.cfg.ZScoreConfirmDays)
		zscoreRiskOn = last(signal)
		snapshot.Signals[SignalBreadthZScore] = models.BoolSignal(zscoreRiskOn)
	} else {
		logger.Warn("advance/decline series too short for z-score signal",
			zap.String("symbol", c.cfg.ADRatioSymbol))
	}

	if !zscoreRiskOn {
		snapshot.Color = models.ColorRed
	}

	// Entry pulses are reported on the snapshot but do not move the color.
	c.reportCross(frame, &snapshot, c.cfg.BreadthSlowSymbol, SignalSlowCross, c.cfg.CrossSlowConfirm)
	c.reportCross(frame, &snapshot, c.cfg.BreadthMediumSymbol, SignalMediumCross, c.cfg.CrossMediumConfirm)
	c.reportCross(frame, &snapshot, c.cfg.BreadthFastSymbol, SignalFastCross, c.cfg.CrossFastConfirm)

	var breadth [][]float64
	for _, sym := range []string{c.cfg.BreadthFastSymbol, c.cfg.BreadthMediumSymbol, c.cfg.BreadthSlowSymbol} {
		if col, ok := frame.Column(sym); ok {
			breadth = append(breadth, col)
		} else {
			logger.Warn("breadth series unavailable for combined count", zap.String("symbol", sym))
		}
	}
	if len(breadth) > 0 {
		counts := CombinedBelowCount(breadth, c.cfg.CombinedThreshold)
		count := counts[len(counts)-1]
		snapshot.Signals[SignalCombinedCount] = models.CountSignal(count)

		if snapshot.Color != models.ColorRed {
			snapshot.Color = colorFromCount(count)
		}
	}

	logger.Info("regime classified",
		zap.String("color", string(snapshot.Color)),
		zap.Bool("above_long_ma", snapshot.AboveLongMA),
		zap.Float64("vix_close", snapshot.VIXClose),
	)

	return snapshot, nil
}

func (c *Classifier) aboveLongMA(index []float64) bool {
	if len(index) < c.cfg.LongMAPeriod {
		return false
	}
	sma := indicator.Sma(c.cfg.LongMAPeriod, index)
	return index[len(index)-1] > sma[len(sma)-1]
}

func (c *Classifier) reportCross(frame *Frame, snapshot *models.RegimeSnapshot, symbol, name string, confirm int) {
	col, ok := frame.Column(symbol)
	if !ok || len(col) < 2 {
		return
	}
	pulses := CrossEntryPulses(col, c.cfg.CrossThreshold, confirm)
	snapshot.Signals[name] = models.BoolSignal(last(pulses))
}

func colorFromCount(count int) models.RegimeColor {
	switch {
	case count >= 3:
		return models.ColorRed
	case count == 2:
		return models.ColorOrange
	case count == 1:
		return models.ColorYellow
	default:
		return models.ColorGreen
	}
}

func last(s []bool) bool {
	if len(s) == 0 {
		return false
	}
	return s[len(s)-1]
}
