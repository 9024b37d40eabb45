// Package config provides configuration management for the backtest
// engine: commission-schedule overrides, risk limits, data-pipeline
// settings, and the per-symbol metadata table, loaded from a TOML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"hkbacktest/internal/commission"
	"hkbacktest/internal/models"
	"hkbacktest/internal/risk"
)

// Config holds all application configuration.
type Config struct {
	Commission CommissionConfig        `mapstructure:"commission"`
	Risk       RiskConfig              `mapstructure:"risk"`
	Data       DataConfig              `mapstructure:"data"`
	Symbols    map[string]SymbolConfig `mapstructure:"symbols"`
}

// CommissionConfig mirrors commission.Schedule, one section per fee
// component, so every rate/min/max named in §4.8 is a tunable override
// rather than a compiled-in constant.
type CommissionConfig struct {
	Commission              FeeComponent `mapstructure:"trade_commission"`
	TradingFee               FeeComponent `mapstructure:"trading_fee"`
	SettlementFee            FeeComponent `mapstructure:"settlement_fee"`
	CCASSFee                 FeeComponent `mapstructure:"ccass_fee"`
	StampDuty                FeeComponent `mapstructure:"stamp_duty"`
	InvestorCompensationFee  FeeComponent `mapstructure:"investor_compensation_fee"`
}

// FeeComponent is the TOML-facing shape of commission.Component.
type FeeComponent struct {
	Rate         float64 `mapstructure:"rate"`
	Min          float64 `mapstructure:"min"`
	Max          float64 `mapstructure:"max"`
	SellOnly     bool    `mapstructure:"sell_only"`
	WaivedForETF bool    `mapstructure:"waived_for_etf"`
}

// Schedule converts the config section into a commission.Schedule.
func (c CommissionConfig) Schedule() commission.Schedule {
	conv := func(f FeeComponent) commission.Component {
		return commission.Component{Rate: f.Rate, Min: f.Min, Max: f.Max, SellOnly: f.SellOnly, WaivedForETF: f.WaivedForETF}
	}
	return commission.Schedule{
		Commission:              conv(c.Commission),
		TradingFee:               conv(c.TradingFee),
		SettlementFee:            conv(c.SettlementFee),
		CCASSFee:                 conv(c.CCASSFee),
		StampDuty:                conv(c.StampDuty),
		InvestorCompensationFee:  conv(c.InvestorCompensationFee),
	}
}

func fromSchedule(s commission.Schedule) CommissionConfig {
	conv := func(c commission.Component) FeeComponent {
		return FeeComponent{Rate: c.Rate, Min: c.Min, Max: c.Max, SellOnly: c.SellOnly, WaivedForETF: c.WaivedForETF}
	}
	return CommissionConfig{
		Commission:              conv(s.Commission),
		TradingFee:               conv(s.TradingFee),
		SettlementFee:            conv(s.SettlementFee),
		CCASSFee:                 conv(s.CCASSFee),
		StampDuty:                conv(s.StampDuty),
		InvestorCompensationFee:  conv(s.InvestorCompensationFee),
	}
}

// RiskConfig mirrors risk.Limits (spec §4.6's account-level parameters).
type RiskConfig struct {
	MaxSinglePosition    float64 `mapstructure:"max_single_position"`
	MaxDailyLoss         float64 `mapstructure:"max_daily_loss"`
	ConsecutiveLossLimit int     `mapstructure:"consecutive_loss_limit"`
	MaxDrawdown          float64 `mapstructure:"max_drawdown"`
}

// Limits converts the config section into a risk.Limits.
func (c RiskConfig) Limits() risk.Limits {
	return risk.Limits{
		MaxSinglePosition:    c.MaxSinglePosition,
		MaxDailyLoss:         c.MaxDailyLoss,
		ConsecutiveLossLimit: c.ConsecutiveLossLimit,
		MaxDrawdown:          c.MaxDrawdown,
	}
}

// DataConfig holds the data pipeline's store path, fetch bounds, and
// retry policy (spec §4.1/§5 timeouts).
type DataConfig struct {
	StorePath         string        `mapstructure:"store_path"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	PrepareTimeout    time.Duration `mapstructure:"prepare_timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	CandleSourcePath  string        `mapstructure:"candle_source_path"`
}

// SymbolConfig is the TOML-facing shape of models.SymbolMetadata (minus
// the symbol key itself, which is the map key).
type SymbolConfig struct {
	LotSize     int    `mapstructure:"lot_size"`
	IsETF       bool   `mapstructure:"is_etf"`
	DisplayName string `mapstructure:"display_name"`
}

// defaultSymbolOverrides is the spec §6 "documented for at least" table:
// non-default lot sizes and the HK-listed ETFs whose stamp duty is
// waived. Any symbol absent from this map gets lotSize=100, isETF=false.
func defaultSymbolOverrides() map[string]SymbolConfig {
	return map[string]SymbolConfig{
		"00005.HK": {LotSize: 400, DisplayName: "HSBC Holdings"},
		"00939.HK": {LotSize: 1000, DisplayName: "China Construction Bank"},
		"01299.HK": {LotSize: 500, DisplayName: "AIA Group"},
		"02800.HK": {LotSize: 500, IsETF: true, DisplayName: "Tracker Fund of Hong Kong"},
		"03033.HK": {LotSize: 2000, IsETF: true, DisplayName: "CSOP Hang Seng TECH Index ETF"},
		"02828.HK": {LotSize: 500, IsETF: true, DisplayName: "Hang Seng H-Share Index ETF"},
		"03067.HK": {LotSize: 100, IsETF: true, DisplayName: "ICBC CSOP FTSE China A50 ETF"},
	}
}

// SymbolMetadataTable converts the config's symbol map into the
// map[string]models.SymbolMetadata the data pipeline is built with,
// falling back to the documented defaults for any symbol present in the
// defaults but absent from the loaded config.
func (c *Config) SymbolMetadataTable() map[string]models.SymbolMetadata {
	out := make(map[string]models.SymbolMetadata, len(c.Symbols))
	for sym, sc := range c.Symbols {
		lot := sc.LotSize
		if lot <= 0 {
			lot = models.DefaultLotSize
		}
		out[sym] = models.SymbolMetadata{Symbol: sym, LotSize: lot, IsETF: sc.IsETF, DisplayName: sc.DisplayName}
	}
	for sym, sc := range defaultSymbolOverrides() {
		if _, ok := out[sym]; !ok {
			out[sym] = models.SymbolMetadata{Symbol: sym, LotSize: sc.LotSize, IsETF: sc.IsETF, DisplayName: sc.DisplayName}
		}
	}
	return out
}

// DefaultConfig returns the spec's default commission schedule, risk
// limits, and data settings, plus the documented symbol overrides.
func DefaultConfig() *Config {
	cfg := &Config{
		Commission: fromSchedule(commission.DefaultSchedule()),
		Risk: RiskConfig{
			MaxSinglePosition:    500000,
			MaxDailyLoss:         0.02,
			ConsecutiveLossLimit: 5,
			MaxDrawdown:          0.25,
		},
		Data: DataConfig{
			StorePath:      filepath.Join(DefaultConfigDir(), "hkbacktest.db"),
			FetchTimeout:   30 * time.Second,
			PrepareTimeout: 120 * time.Second,
			RetryAttempts:  3,
		},
		Symbols: defaultSymbolOverrides(),
	}
	return cfg
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/hkbacktest"
	}
	return filepath.Join(home, ".config", "hkbacktest")
}

// Load loads configuration from configDir/backtest.toml, applying
// HKBT_-prefixed environment overrides and validating the result. If
// configDir is empty, the default config directory is used; if no
// config file exists there yet, a template is written and the defaults
// are returned.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("backtest")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("HKBT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if werr := writeTemplateConfig(configDir); werr != nil {
				return nil, fmt.Errorf("writing default config: %w", werr)
			}
			applyEnvOverrides(cfg)
			if verr := cfg.Validate(); verr != nil {
				return nil, fmt.Errorf("validating config: %w", verr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading backtest.toml: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing backtest.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HKBT_STORE_PATH"); v != "" {
		cfg.Data.StorePath = v
	}
	if v := os.Getenv("HKBT_CANDLE_SOURCE_PATH"); v != "" {
		cfg.Data.CandleSourcePath = v
	}
}

// Validate validates the configuration against the spec's stated
// ranges.
func (c *Config) Validate() error {
	if c.Risk.MaxSinglePosition <= 0 {
		return fmt.Errorf("risk.max_single_position must be positive")
	}
	if c.Risk.MaxDailyLoss < 0 || c.Risk.MaxDailyLoss > 1 {
		return fmt.Errorf("risk.max_daily_loss must be between 0 and 1")
	}
	if c.Risk.MaxDrawdown < 0 || c.Risk.MaxDrawdown > 1 {
		return fmt.Errorf("risk.max_drawdown must be between 0 and 1")
	}
	if c.Risk.ConsecutiveLossLimit < 0 {
		return fmt.Errorf("risk.consecutive_loss_limit must be non-negative")
	}
	if c.Data.RetryAttempts <= 0 {
		return fmt.Errorf("data.retry_attempts must be positive")
	}
	for sym, sc := range c.Symbols {
		if sc.LotSize < 0 {
			return fmt.Errorf("symbols.%s.lot_size must be non-negative", sym)
		}
	}
	return nil
}
