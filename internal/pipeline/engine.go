package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/apershukov/allocator/internal/adapters/ai"
	"github.com/apershukov/allocator/internal/adapters/config"
	"github.com/apershukov/allocator/internal/allocation"
	"github.com/apershukov/allocator/internal/analytics"
	"github.com/apershukov/allocator/internal/rebalance"
	"github.com/apershukov/allocator/internal/regime"
	"github.com/apershukov/allocator/internal/sleeves"
	"github.com/apershukov/allocator/pkg/logger"
	"github.com/apershukov/allocator/pkg/models"
)

// MarketData loads daily history for a symbol batch.
type MarketData interface {
	Load(ctx context.Context, symbols []string) (map[string][]models.Bar, []string)
}

// DecisionLog is the authoritative decision history.
type DecisionLog interface {
	Latest() (*models.Decision, error)
	Append(decision models.Decision) error
}

// Archiver mirrors decisions to secondary storage. Failures warn only.
type Archiver interface {
	Save(ctx context.Context, decision models.Decision) error
}

// Notifier delivers the daily summary. Failures warn only.
type Notifier interface {
	SendDailySummary(decision models.Decision) error
}

// Deps collects the engine's collaborators. Archive, Notify and Providers
// are optional.
type Deps struct {
	Market    MarketData
	Log       DecisionLog
	Archive   Archiver
	Notify    Notifier
	Providers []ai.Provider
}

// Engine runs one full allocation pass: load data, classify the regime, map
// the allocation, rank every sleeve, attach analytics and the model opinion,
// diff against the previous run, persist.
type Engine struct {
	cfg        *config.Config
	deps       Deps
	classifier *regime.Classifier
	mapper     *allocation.Mapper
	analyzer   *analytics.Analyzer
	differ     *rebalance.Differ
}

// NewEngine creates the pipeline engine.
func NewEngine(cfg *config.Config, deps Deps) *Engine {
	return &Engine{
		cfg:        cfg,
		deps:       deps,
		classifier: regime.NewClassifier(&cfg.Regime),
		mapper:     allocation.NewMapper(&cfg.Allocation),
		analyzer:   analytics.NewAnalyzer(),
		differ:     rebalance.NewDiffer(),
	}
}

// Optional context symbols for the model snapshot. Absence is normal and
// never produces a warning.
var snapshotExtras = []string{"VIX3M", "US02Y", "US10Y", "GLD"}

// Run executes one daily pass and returns the persisted decision.
func (e *Engine) Run(ctx context.Context) (*models.Decision, error) {
	started := time.Now()

	history, warnings := e.deps.Market.Load(ctx, e.requiredSymbols())
	extras, _ := e.deps.Market.Load(ctx, e.missingExtras(history))
	for symbol, bars := range extras {
		history[symbol] = bars
	}

	warnings = append(warnings, e.cfg.CrossCheckWarnings()...)

	frame, err := regime.NewFrame(e.regimeSeries(history))
	if err != nil {
		return nil, fmt.Errorf("failed to build regime frame: %w", err)
	}

	asOf := frame.LastDate()
	stale := e.checkFreshness(asOf, &warnings)

	snapshot, err := e.classifier.Classify(frame, asOf)
	if err != nil {
		return nil, fmt.Errorf("regime classification failed: %w", err)
	}

	key, vector := e.mapper.Allocate(snapshot)

	logger.Info("regime classified",
		zap.String("color", string(snapshot.Color)),
		zap.String("key", string(key)),
		zap.Float64("vix", snapshot.VIXClose),
		zap.Bool("above_long_ma", snapshot.AboveLongMA),
	)

	results := e.rankSleeves(history, vector, key)

	decision := models.Decision{
		AsOf:       asOf,
		Regime:     snapshot,
		RegimeKey:  key,
		Allocation: vector,
		Sleeves:    results,
		Stale:      stale,
		Warnings:   warnings,
	}

	decision.Analytics = e.runAnalytics(results, vector, history)

	if len(e.deps.Providers) > 0 {
		marketSnapshot := ai.BuildSnapshot(history, snapshot, results)
		decision.Opinion = ai.SecondOpinion(ctx, e.deps.Providers, marketSnapshot, snapshot.Color)
	}

	// The previous run must be read before this one is appended; after the
	// append the latest entry is the current decision itself.
	previous, err := e.deps.Log.Latest()
	if err != nil {
		logger.Warn("failed to read previous decision, diffing as first run", zap.Error(err))
		decision.Warnings = append(decision.Warnings, "previous decision unreadable: "+err.Error())
		previous = nil
	}
	changes := e.differ.Diff(decision, previous)
	decision.Changes = &changes

	if err := e.deps.Log.Append(decision); err != nil {
		return &decision, fmt.Errorf("failed to persist decision: %w", err)
	}

	if err := e.writeResults(decision); err != nil {
		logger.Warn("failed to write results file", zap.Error(err))
	}

	if e.deps.Archive != nil {
		if err := e.deps.Archive.Save(ctx, decision); err != nil {
			logger.Warn("failed to archive decision", zap.Error(err))
		}
	}

	if e.deps.Notify != nil {
		if err := e.deps.Notify.SendDailySummary(decision); err != nil {
			logger.Warn("failed to send daily summary", zap.Error(err))
		}
	}

	logger.Info("pipeline run complete",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("regime", string(snapshot.Color)),
		zap.Bool("first_run", changes.FirstRun),
		zap.Int("changes", len(changes.Changes)),
		zap.Int("warnings", len(decision.Warnings)),
	)

	return &decision, nil
}

// requiredSymbols is the union of regime inputs, every sleeve universe, and
// the hedge instruments.
func (e *Engine) requiredSymbols() []string {
	seen := make(map[string]struct{})
	var symbols []string
	add := func(s string) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			symbols = append(symbols, s)
		}
	}

	for _, s := range []string{
		e.cfg.Regime.IndexSymbol,
		e.cfg.Regime.VIXSymbol,
		e.cfg.Regime.ADRatioSymbol,
		e.cfg.Regime.BreadthSlowSymbol,
		e.cfg.Regime.BreadthMediumSymbol,
		e.cfg.Regime.BreadthFastSymbol,
	} {
		add(s)
	}
	for _, def := range sleeves.RankedDefinitions() {
		for _, s := range def.Symbols() {
			add(s)
		}
	}
	for _, s := range sleeves.HedgeInstruments {
		add(s)
	}

	return symbols
}

func (e *Engine) missingExtras(history map[string][]models.Bar) []string {
	var missing []string
	for _, s := range snapshotExtras {
		if _, ok := history[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

func (e *Engine) regimeSeries(history map[string][]models.Bar) map[string][]models.Bar {
	series := make(map[string][]models.Bar)
	for _, s := range []string{
		e.cfg.Regime.IndexSymbol,
		e.cfg.Regime.VIXSymbol,
		e.cfg.Regime.ADRatioSymbol,
		e.cfg.Regime.BreadthSlowSymbol,
		e.cfg.Regime.BreadthMediumSymbol,
		e.cfg.Regime.BreadthFastSymbol,
	} {
		if bars, ok := history[s]; ok {
			series[s] = bars
		}
	}
	return series
}

func (e *Engine) checkFreshness(asOf time.Time, warnings *[]string) bool {
	stale := false
	if e.cfg.Regime.FreshnessHours > 0 {
		age := time.Since(asOf)
		if age > time.Duration(e.cfg.Regime.FreshnessHours)*time.Hour {
			stale = true
			*warnings = append(*warnings, fmt.Sprintf(
				"STALE INPUT: latest regime bar is %.0f hours old", age.Hours()))
		}
	}
	for _, w := range *warnings {
		if strings.Contains(w, "STALE INPUT") {
			stale = true
		}
	}
	return stale
}

func (e *Engine) rankSleeves(history map[string][]models.Bar, vector models.AllocationVector, key models.RegimeKey) map[models.Sleeve]models.SleeveResult {
	results := make(map[models.Sleeve]models.SleeveResult)

	for _, def := range sleeves.RankedDefinitions() {
		ranker := sleeves.NewRanker(def)
		results[def.Sleeve] = ranker.RankAndSelect(history, vector[def.Sleeve], key)
	}

	hedge := sleeves.NewHedgeSelector(&e.cfg.Hedge, nil)
	results[models.SleeveAlternatives] = hedge.Evaluate(
		history[e.cfg.Regime.VIXSymbol],
		vector[models.SleeveAlternatives],
	)

	return results
}

// runAnalytics isolates the analytics stage: a panic there degrades to a
// missing analytics block, never a failed run.
func (e *Engine) runAnalytics(results map[models.Sleeve]models.SleeveResult, vector models.AllocationVector, history map[string][]models.Bar) (block *models.PortfolioAnalytics) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("analytics stage panicked, continuing without analytics",
				zap.Any("panic", r))
			block = nil
		}
	}()

	return e.analyzer.Analyze(results, vector, history)
}

func (e *Engine) writeResults(decision models.Decision) error {
	path := e.cfg.History.ResultsPath
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	payload, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	return os.WriteFile(path, payload, 0o644)
}
