package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Regime     RegimeConfig     `envconfig:"REGIME"`
	Allocation AllocationConfig `envconfig:"ALLOCATION"`
	Hedge      HedgeConfig      `envconfig:"HEDGE"`
	MarketData MarketDataConfig `envconfig:"MARKETDATA"`
	AI         AIConfig         `envconfig:"AI"`
	History    HistoryConfig    `envconfig:"HISTORY"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// RegimeConfig holds signal-engine parameters and input symbols.
type RegimeConfig struct {
	IndexSymbol   string `envconfig:"REGIME_INDEX_SYMBOL" default:"SPX"`
	VIXSymbol     string `envconfig:"REGIME_VIX_SYMBOL" default:"VIX"`
	ADRatioSymbol string `envconfig:"REGIME_AD_RATIO_SYMBOL" default:"ADRN"`

	// Breadth oscillators: percent of stocks above their 200/50/20 day MA.
	BreadthSlowSymbol   string `envconfig:"REGIME_BREADTH_SLOW_SYMBOL" default:"MMTH"`
	BreadthMediumSymbol string `envconfig:"REGIME_BREADTH_MEDIUM_SYMBOL" default:"MMFI"`
	BreadthFastSymbol   string `envconfig:"REGIME_BREADTH_FAST_SYMBOL" default:"MMTW"`

	LongMAPeriod int `envconfig:"REGIME_LONG_MA_PERIOD" default:"200"`

	// Cumulative AD z-score signal.
	ZScoreLookback    int     `envconfig:"REGIME_ZSCORE_LOOKBACK" default:"252"`
	ZScoreSmoothing   int     `envconfig:"REGIME_ZSCORE_SMOOTHING" default:"50"`
	ZScoreThreshold   float64 `envconfig:"REGIME_ZSCORE_THRESHOLD" default:"-1.0"`
	ZScoreConfirmDays int     `envconfig:"REGIME_ZSCORE_CONFIRM_DAYS" default:"0"`

	// Oscillator cross-entry pulses.
	CrossThreshold     float64 `envconfig:"REGIME_CROSS_THRESHOLD" default:"25"`
	CrossSlowConfirm   int     `envconfig:"REGIME_CROSS_SLOW_CONFIRM" default:"0"`
	CrossMediumConfirm int     `envconfig:"REGIME_CROSS_MEDIUM_CONFIRM" default:"3"`
	CrossFastConfirm   int     `envconfig:"REGIME_CROSS_FAST_CONFIRM" default:"3"`

	// Volatility Bollinger exit pulse.
	VolExitWindow    int     `envconfig:"REGIME_VOL_EXIT_WINDOW" default:"20"`
	VolExitStdDev    float64 `envconfig:"REGIME_VOL_EXIT_STDDEV" default:"2.0"`
	VolExitPctBFloor float64 `envconfig:"REGIME_VOL_EXIT_PCTB_FLOOR" default:"0"`

	// Combined breadth count.
	CombinedThreshold float64 `envconfig:"REGIME_COMBINED_THRESHOLD" default:"50"`

	// Inputs older than this many hours set the stale flag on the Decision.
	FreshnessHours int `envconfig:"REGIME_FRESHNESS_HOURS" default:"96"`
}

// AllocationConfig holds the mapper's VIX overrides. These are configured
// independently from the signal engine's volatility thresholds; Validate
// surfaces the discrepancy instead of unifying them.
type AllocationConfig struct {
	VIXRiskOffThreshold float64 `envconfig:"ALLOCATION_VIX_RISK_OFF" default:"30"`
	VIXCrisisThreshold  float64 `envconfig:"ALLOCATION_VIX_CRISIS" default:"40"`
}

// HedgeConfig holds the event-driven volatility-hedge sleeve thresholds.
type HedgeConfig struct {
	VIXEntryLevel float64 `envconfig:"HEDGE_VIX_ENTRY" default:"20"`
	VIXExitLevel  float64 `envconfig:"HEDGE_VIX_EXIT" default:"18"`
	BBWindow      int     `envconfig:"HEDGE_BB_WINDOW" default:"20"`
	BBStdMult     float64 `envconfig:"HEDGE_BB_STD_MULT" default:"2.0"`
	BBEntryFloor  float64 `envconfig:"HEDGE_BB_ENTRY" default:"0.8"`
	BBExitCeiling float64 `envconfig:"HEDGE_BB_EXIT" default:"0.5"`
	BBSpikeFloor  float64 `envconfig:"HEDGE_BB_SPIKE" default:"1.0"`
}

// DatabaseConfig represents the bar-cache database connection parameters.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"allocator"`
	User     string `envconfig:"DB_USER" default:"allocator"`
	Password string `envconfig:"DB_PASSWORD" required:"false"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// GetDSN builds a postgres connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
}

// MarketDataConfig controls the price-history provider and its cache.
type MarketDataConfig struct {
	Database       DatabaseConfig `envconfig:"DB"`
	MigrationsPath string         `envconfig:"MARKETDATA_MIGRATIONS_PATH" default:"migrations"`
	HistoryBars    int            `envconfig:"MARKETDATA_HISTORY_BARS" default:"1000"`
	FreshnessHours int            `envconfig:"MARKETDATA_FRESHNESS_HOURS" default:"24"`
	// ForceRefresh bypasses the cache freshness check. Threaded explicitly
	// through the call chain, never a package-level flag.
	ForceRefresh bool `envconfig:"MARKETDATA_FORCE_REFRESH" default:"false"`

	TradingView TradingViewConfig `envconfig:"TRADINGVIEW"`
	Binance     BinanceConfig     `envconfig:"BINANCE"`
}

// TradingViewConfig configures the websocket daily-bar feed.
type TradingViewConfig struct {
	Enabled   bool   `envconfig:"TRADINGVIEW_ENABLED" default:"true"`
	AuthToken string `envconfig:"TRADINGVIEW_AUTH_TOKEN" default:"unauthorized_user_token"`
	Exchange  string `envconfig:"TRADINGVIEW_EXCHANGE" default:"AMEX"`
}

// BinanceConfig configures the ccxt OHLCV provider used for crypto symbols.
type BinanceConfig struct {
	Enabled bool   `envconfig:"BINANCE_ENABLED" default:"false"`
	APIKey  string `envconfig:"BINANCE_API_KEY" required:"false"`
	Secret  string `envconfig:"BINANCE_SECRET" required:"false"`
}

// AIConfig represents second-opinion provider configurations.
type AIConfig struct {
	Claude AIProviderConfig `envconfig:"CLAUDE"`
	OpenAI AIProviderConfig `envconfig:"OPENAI"`
}

// AIProviderConfig represents a single provider.
type AIProviderConfig struct {
	APIKey  string `envconfig:"API_KEY" required:"false"`
	Enabled bool   `envconfig:"ENABLED" default:"false"`
	Model   string `envconfig:"MODEL" required:"false"`
}

// HistoryConfig controls decision persistence.
type HistoryConfig struct {
	LogPath       string `envconfig:"HISTORY_LOG_PATH" default:"docs/history/allocation-log.jsonl"`
	ResultsPath   string `envconfig:"HISTORY_RESULTS_PATH" default:"docs/allocation-results.json"`
	ClickHouseDSN string `envconfig:"HISTORY_CLICKHOUSE_DSN" required:"false"`
}

// TelegramConfig represents the daily-summary notifier.
type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" default:""`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Regime.LongMAPeriod <= 0 {
		return fmt.Errorf("long MA period must be positive")
	}
	if c.Regime.ZScoreLookback <= c.Regime.ZScoreSmoothing {
		return fmt.Errorf("zscore lookback (%d) must exceed smoothing window (%d)",
			c.Regime.ZScoreLookback, c.Regime.ZScoreSmoothing)
	}
	if c.Allocation.VIXCrisisThreshold <= c.Allocation.VIXRiskOffThreshold {
		return fmt.Errorf("VIX crisis threshold (%.1f) must exceed risk-off threshold (%.1f)",
			c.Allocation.VIXCrisisThreshold, c.Allocation.VIXRiskOffThreshold)
	}
	if c.Hedge.VIXExitLevel >= c.Hedge.VIXEntryLevel {
		return fmt.Errorf("hedge VIX exit level (%.1f) must be below entry level (%.1f)",
			c.Hedge.VIXExitLevel, c.Hedge.VIXEntryLevel)
	}
	if c.Hedge.BBExitCeiling >= c.Hedge.BBEntryFloor {
		return fmt.Errorf("hedge %%B exit ceiling (%.2f) must be below entry floor (%.2f)",
			c.Hedge.BBExitCeiling, c.Hedge.BBEntryFloor)
	}
	if c.MarketData.HistoryBars < 2 {
		return fmt.Errorf("history bars must be at least 2")
	}
	return nil
}

// CrossCheckWarnings reports configuration values that are individually
// valid but mutually inconsistent. The allocation mapper's VIX overrides and
// the signal-side volatility thresholds are configured independently and may
// disagree; that disagreement is reported, never silently reconciled.
func (c *Config) CrossCheckWarnings() []string {
	var warnings []string
	if c.Hedge.VIXEntryLevel < c.Allocation.VIXRiskOffThreshold {
		warnings = append(warnings, fmt.Sprintf(
			"hedge sleeve deploys at VIX>=%.0f while the allocation mapper stays pre-risk-off until VIX>%.0f; the two thresholds are configured independently",
			c.Hedge.VIXEntryLevel, c.Allocation.VIXRiskOffThreshold))
	}
	if c.Allocation.VIXCrisisThreshold < c.Hedge.VIXEntryLevel {
		warnings = append(warnings, fmt.Sprintf(
			"allocation crisis threshold (%.0f) is below the hedge entry level (%.0f)",
			c.Allocation.VIXCrisisThreshold, c.Hedge.VIXEntryLevel))
	}
	return warnings
}
