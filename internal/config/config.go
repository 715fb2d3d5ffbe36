// Package config provides configuration management for the trading engine.
// Configuration is loaded once per process and never mutated at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig             `mapstructure:"trading"`
	Risk        RiskConfig                `mapstructure:"risk"`
	Governor    GovernorConfig            `mapstructure:"governor"`
	Strategies  map[string]StrategyConfig `mapstructure:"strategies"`
	Store       StoreConfig               `mapstructure:"store"`
	Logging     LoggingConfig             `mapstructure:"logging"`
	Metrics     MetricsConfig             `mapstructure:"metrics"`
	Credentials Credentials               `mapstructure:"-"` // loaded separately
}

// TradingConfig holds session and mode configuration.
type TradingConfig struct {
	Mode            string `mapstructure:"mode"`     // "live", "paper"
	Timezone        string `mapstructure:"timezone"` // exchange timezone
	SessionOpen     string `mapstructure:"session_open"`     // "09:30"
	ConfirmDeadline string `mapstructure:"confirm_deadline"` // "10:30"
	SessionClose    string `mapstructure:"session_close"`    // "16:00"
	TickInterval    string `mapstructure:"tick_interval"`    // intraday watch cadence
}

// RiskConfig holds the global sizing and admission caps.
type RiskConfig struct {
	BaseEquity        float64 `mapstructure:"base_equity"`
	WeightCap         float64 `mapstructure:"weight_cap"`          // fraction of equity per position
	RiskPerTrade      float64 `mapstructure:"risk_per_trade"`      // base risk fraction
	ShortSizeRatio    float64 `mapstructure:"short_size_ratio"`    // applied after sizing shorts
	GapThreshold      float64 `mapstructure:"gap_threshold"`       // abs pre-open gap fraction
	MaxDailyEntries   int     `mapstructure:"max_daily_entries"`
	MaxLongPositions  int     `mapstructure:"max_long_positions"`
	MaxShortPositions int     `mapstructure:"max_short_positions"`
	MaxPerSector      int     `mapstructure:"max_per_sector"`
	MaxPerStrategy    int     `mapstructure:"max_per_strategy"` // soft, under contention only
	RankBonusWeight   float64 `mapstructure:"rank_bonus_weight"`
}

// TierConfig maps a drawdown threshold to its allowance. Tiers are ordered by
// ascending threshold; crossing threshold i puts the scope at tier i+1.
type TierConfig struct {
	Drawdown       float64 `mapstructure:"drawdown"`        // fraction of reference capital
	RiskMultiplier float64 `mapstructure:"risk_multiplier"` // scales the base risk fraction
	MaxEntries     int     `mapstructure:"max_entries"`     // new entries per day, 0 = halt
}

// GovernorConfig holds the portfolio safety-net loop configuration.
type GovernorConfig struct {
	WindowDays int          `mapstructure:"window_days"`
	Tiers      []TierConfig `mapstructure:"tiers"`
}

// StrategyConfig holds per-strategy stop/target and drawdown settings.
type StrategyConfig struct {
	TakeProfitATRMultiple float64 `mapstructure:"take_profit_atr_multiple"` // 0 = no ATR target
	TakeProfitIndicator   string  `mapstructure:"take_profit_indicator"`    // empty = none
	TrailingActivationATR float64 `mapstructure:"trailing_activation_atr"`  // 0 = no trailing stop
	TrailingATRMultiple   float64 `mapstructure:"trailing_atr_multiple"`
	MaxHoldDays           int     `mapstructure:"max_hold_days"`

	// Emergency thresholds for entry-day intraday monitoring, as adverse-move
	// fractions. Hard triggers on one observation; soft needs two consecutive.
	EmergencyHardPct float64 `mapstructure:"emergency_hard_pct"`
	EmergencySoftPct float64 `mapstructure:"emergency_soft_pct"`

	// Drawdown governor loop for this strategy.
	ReferenceCapital float64      `mapstructure:"reference_capital"`
	WindowDays       int          `mapstructure:"window_days"`
	Tiers            []TierConfig `mapstructure:"tiers"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Credentials holds broker API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Zerodha Kite Connect credentials.
type KiteCredentials struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	UserID     string `mapstructure:"user_id"`
	Password   string `mapstructure:"password"`    // for auto-login
	TOTPSecret string `mapstructure:"totp_secret"` // for auto-login with 2FA
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/swing-trader"
	}
	return filepath.Join(home, ".config", "swing-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.yaml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.yaml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// No config file: run on defaults.
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil // credentials are optional for paper and backtest modes
		}
		return err
	}

	return v.Unmarshal(creds)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.timezone", "America/New_York")
	v.SetDefault("trading.session_open", "09:30")
	v.SetDefault("trading.confirm_deadline", "10:30")
	v.SetDefault("trading.session_close", "16:00")
	v.SetDefault("trading.tick_interval", "1m")

	v.SetDefault("risk.base_equity", 100000.0)
	v.SetDefault("risk.weight_cap", 0.10)
	v.SetDefault("risk.risk_per_trade", 0.02)
	v.SetDefault("risk.short_size_ratio", 0.65)
	v.SetDefault("risk.gap_threshold", 0.04)
	v.SetDefault("risk.max_daily_entries", 6)
	v.SetDefault("risk.max_long_positions", 10)
	v.SetDefault("risk.max_short_positions", 5)
	v.SetDefault("risk.max_per_sector", 3)
	v.SetDefault("risk.max_per_strategy", 4)
	v.SetDefault("risk.rank_bonus_weight", 0.15)

	v.SetDefault("governor.window_days", 60)

	v.SetDefault("store.path", filepath.Join(DefaultConfigDir(), "trader.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(DefaultConfigDir(), "logs", "trader.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9109")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_USER_ID"); v != "" {
		cfg.Credentials.Kite.UserID = v
	}
	if v := os.Getenv("KITE_TOTP_SECRET"); v != "" {
		cfg.Credentials.Kite.TOTPSecret = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("trading.mode must be live or paper, got %q", c.Trading.Mode)
	}
	if c.Risk.WeightCap <= 0 || c.Risk.WeightCap > 1 {
		return fmt.Errorf("risk.weight_cap must be in (0, 1], got %v", c.Risk.WeightCap)
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 1 {
		return fmt.Errorf("risk.risk_per_trade must be in (0, 1], got %v", c.Risk.RiskPerTrade)
	}
	if c.Risk.ShortSizeRatio <= 0 || c.Risk.ShortSizeRatio > 1 {
		return fmt.Errorf("risk.short_size_ratio must be in (0, 1], got %v", c.Risk.ShortSizeRatio)
	}
	if c.Risk.GapThreshold < 0 {
		return fmt.Errorf("risk.gap_threshold must be non-negative")
	}
	for name, sc := range c.Strategies {
		// Zero means "use the engine default", applied by Strategy().
		if sc.MaxHoldDays < 0 {
			return fmt.Errorf("strategy %s: max_hold_days must not be negative", name)
		}
		if sc.ReferenceCapital < 0 {
			return fmt.Errorf("strategy %s: reference_capital must not be negative", name)
		}
		if !tiersAscending(sc.Tiers) {
			return fmt.Errorf("strategy %s: tiers must have ascending drawdown thresholds", name)
		}
	}
	if !tiersAscending(c.Governor.Tiers) {
		return fmt.Errorf("governor.tiers must have ascending drawdown thresholds")
	}
	return nil
}

func tiersAscending(tiers []TierConfig) bool {
	return sort.SliceIsSorted(tiers, func(i, j int) bool {
		return tiers[i].Drawdown < tiers[j].Drawdown
	})
}

// Strategy returns the configuration for a strategy, applying engine-wide
// defaults for any field the strategy leaves unset.
func (c *Config) Strategy(name string) StrategyConfig {
	sc := c.Strategies[name]
	if sc.EmergencyHardPct == 0 {
		sc.EmergencyHardPct = 0.10
	}
	if sc.EmergencySoftPct == 0 {
		sc.EmergencySoftPct = 0.07
	}
	if sc.MaxHoldDays == 0 {
		sc.MaxHoldDays = 10
	}
	if sc.ReferenceCapital == 0 {
		sc.ReferenceCapital = c.Risk.BaseEquity
	}
	if sc.WindowDays == 0 {
		sc.WindowDays = c.Governor.WindowDays
	}
	return sc
}
