// Package config defines all configuration for Razor. Config is loaded from
// a YAML file (default: configs/config.yaml) with sensitive-free fields
// overridable via RAZOR_* environment variables.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Run        RunConfig        `mapstructure:"run"`
	Brain      BrainConfig      `mapstructure:"brain"`
	Buckets    BucketsConfig    `mapstructure:"buckets"`
	Shadow     ShadowConfig     `mapstructure:"shadow"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// PolymarketConfig holds the exchange endpoints Razor observes.
type PolymarketConfig struct {
	WSBase      string `mapstructure:"ws_base"`
	DataAPIBase string `mapstructure:"data_api_base"`
	GammaBase   string `mapstructure:"gamma_base"`
}

// RunConfig controls ingestion cadence and the set of markets observed.
type RunConfig struct {
	MarketIDs            []string      `mapstructure:"market_ids"`
	SnapshotLogIntervalMs int          `mapstructure:"snapshot_log_interval_ms"`
	TradePollIntervalMs  int           `mapstructure:"trade_poll_interval_ms"`
	TradePollLimit       int           `mapstructure:"trade_poll_limit"`
	TakerOnly            bool          `mapstructure:"takerOnly"`
}

// PollInterval returns the configured trade-poll interval as a Duration.
func (r RunConfig) PollInterval() time.Duration {
	return time.Duration(r.TradePollIntervalMs) * time.Millisecond
}

// BrainConfig tunes the net-edge signal gate.
type BrainConfig struct {
	MinNetEdgeBps          int     `mapstructure:"min_net_edge_bps"`
	RiskPremiumBps         int     `mapstructure:"risk_premium_bps"`
	SignalCooldownMs       int     `mapstructure:"signal_cooldown_ms"`
	MaxSnapshotStalenessMs int     `mapstructure:"max_snapshot_staleness_ms"`
	QReqNotional           float64 `mapstructure:"q_req_notional"`
}

// BucketsConfig sets the fill-share assumption per liquidity bucket.
type BucketsConfig struct {
	FillShareLiquidP25 float64 `mapstructure:"fill_share_liquid_p25"`
	FillShareThinP25   float64 `mapstructure:"fill_share_thin_p25"`
}

// ShadowConfig sets windowing and trade-store bounds for settlement.
type ShadowConfig struct {
	WindowStartMs       int     `mapstructure:"window_start_ms"`
	WindowEndMs         int     `mapstructure:"window_end_ms"`
	TradeRetentionMs    int     `mapstructure:"trade_retention_ms"`
	MaxTrades           int     `mapstructure:"max_trades"`
	DumpSlippageAssumed float64 `mapstructure:"dump_slippage_assumed"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RAZOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges. Any violated
// constraint aborts the run before any data is recorded.
func (c *Config) Validate() error {
	if len(c.Run.MarketIDs) == 0 {
		return fmt.Errorf("run.market_ids must contain at least one market")
	}
	if c.Run.SnapshotLogIntervalMs <= 0 {
		return fmt.Errorf("run.snapshot_log_interval_ms must be > 0")
	}
	if c.Run.TradePollIntervalMs <= 0 {
		return fmt.Errorf("run.trade_poll_interval_ms must be > 0")
	}
	if c.Run.TradePollLimit <= 0 {
		return fmt.Errorf("run.trade_poll_limit must be > 0")
	}
	if c.Brain.SignalCooldownMs < 0 {
		return fmt.Errorf("brain.signal_cooldown_ms must be >= 0")
	}
	if c.Brain.MaxSnapshotStalenessMs <= 0 {
		return fmt.Errorf("brain.max_snapshot_staleness_ms must be > 0")
	}
	if c.Brain.RiskPremiumBps < 0 {
		return fmt.Errorf("brain.risk_premium_bps must be >= 0")
	}
	if c.Brain.QReqNotional <= 0 {
		return fmt.Errorf("brain.q_req_notional must be > 0")
	}
	if !finite01(c.Buckets.FillShareLiquidP25) {
		return fmt.Errorf("buckets.fill_share_liquid_p25 must be finite and in [0,1]")
	}
	if !finite01(c.Buckets.FillShareThinP25) {
		return fmt.Errorf("buckets.fill_share_thin_p25 must be finite and in [0,1]")
	}
	if c.Shadow.WindowStartMs <= 0 {
		return fmt.Errorf("shadow.window_start_ms must be > 0")
	}
	if c.Shadow.WindowEndMs <= c.Shadow.WindowStartMs {
		return fmt.Errorf("shadow.window_end_ms must be > shadow.window_start_ms")
	}
	if c.Shadow.TradeRetentionMs < c.Shadow.WindowEndMs {
		return fmt.Errorf("shadow.trade_retention_ms must be >= shadow.window_end_ms")
	}
	if c.Shadow.MaxTrades <= 0 {
		return fmt.Errorf("shadow.max_trades must be > 0")
	}
	if c.Polymarket.WSBase == "" {
		return fmt.Errorf("polymarket.ws_base is required")
	}
	if c.Polymarket.DataAPIBase == "" {
		return fmt.Errorf("polymarket.data_api_base is required")
	}
	return nil
}

func finite01(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0 && f <= 1
}
