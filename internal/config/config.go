package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for tokenwatch.
type Config struct {
	General     GeneralConfig     `yaml:"general"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Filters     FiltersConfig     `yaml:"filters"`
	RugCheck    RugCheckConfig    `yaml:"rugcheck"`
	Supply      SupplyConfig      `yaml:"supply"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	DexScreener DexScreenerConfig `yaml:"dexscreener"`
	Trading     TradingConfig     `yaml:"trading"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Watchlist   WatchlistConfig   `yaml:"watchlist"`
	API         APIConfig         `yaml:"api"`
	Seed        SeedConfig        `yaml:"seed"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	DryRun      bool   `yaml:"dry_run"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type ArchiveConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DSN              string `yaml:"dsn"`
	BatchSize        int    `yaml:"batch_size"`
	FlushIntervalSec int    `yaml:"flush_interval_sec"`
}

type FiltersConfig struct {
	AllowedChains []string `yaml:"allowed_chains"`

	// MinLiquidityUSD is kept as a string and parsed into a decimal so the
	// floor comparison stays exact near the threshold.
	MinLiquidityUSD string `yaml:"min_liquidity_usd"`
	MinAgeDays      int    `yaml:"min_age_days"`

	// MatchDenyListByName also matches the base token display name against the
	// token deny list. Legacy behavior: a legitimate token can collide with a
	// banned symbol string, so this is a named policy that can be switched off.
	// Unset means enabled, for compatibility.
	MatchDenyListByName *bool `yaml:"match_denylist_by_name"`

	// MinLiquidity is the parsed form of MinLiquidityUSD.
	MinLiquidity decimal.Decimal `yaml:"-"`
}

type RugCheckConfig struct {
	Endpoint   string  `yaml:"endpoint"`
	MinScore   float64 `yaml:"min_score"`
	TimeoutSec int     `yaml:"timeout_sec"`

	// FailOpen accepts a listing when the reputation service is unreachable.
	// Default is fail-closed: unavailable means rejected.
	FailOpen bool `yaml:"fail_open"`
}

type SupplyConfig struct {
	Endpoint        string  `yaml:"endpoint"`
	MaxTopHolderPct float64 `yaml:"max_top_holder_percentage"`
	MaxTopHolders   int     `yaml:"max_top_holders"`
	TimeoutSec      int     `yaml:"timeout_sec"`
}

type ClassifierConfig struct {
	PumpThresholdPct    float64 `yaml:"pump_threshold_pct"`
	RugLiquidityDropPct float64 `yaml:"rug_liquidity_drop_pct"`
	RugPriceDropPct     float64 `yaml:"rug_price_drop_pct"`
	CEXSignalEnabled    bool    `yaml:"cex_signal_enabled"`
	CEXSignalEndpoint   string  `yaml:"cex_signal_endpoint"`
	CEXSignalTimeoutSec int     `yaml:"cex_signal_timeout_sec"`
}

type DexScreenerConfig struct {
	Endpoint   string `yaml:"endpoint"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type TradingConfig struct {
	BonkBotEndpoint string `yaml:"bonkbot_endpoint"`
	TimeoutSec      int    `yaml:"timeout_sec"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type WatchlistConfig struct {
	Addresses       []string `yaml:"addresses"`
	PollIntervalSec int      `yaml:"poll_interval_sec"`
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type SeedConfig struct {
	TokenAddresses     []string `yaml:"token_addresses"`
	DeveloperAddresses []string `yaml:"developer_addresses"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints and parses decimal thresholds.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}

	minLiquidity, err := decimal.NewFromString(c.Filters.MinLiquidityUSD)
	if err != nil {
		return fmt.Errorf("filters.min_liquidity_usd: %w", err)
	}
	if minLiquidity.IsNegative() {
		return fmt.Errorf("filters.min_liquidity_usd must not be negative")
	}
	c.Filters.MinLiquidity = minLiquidity

	if c.Filters.MinAgeDays < 0 {
		return fmt.Errorf("filters.min_age_days must not be negative")
	}
	if c.RugCheck.MinScore < 0 || c.RugCheck.MinScore > 100 {
		return fmt.Errorf("rugcheck.min_score must be in [0,100]")
	}
	if c.Supply.MaxTopHolderPct <= 0 || c.Supply.MaxTopHolderPct > 100 {
		return fmt.Errorf("supply.max_top_holder_percentage must be in (0,100]")
	}
	if c.Supply.MaxTopHolders <= 0 {
		return fmt.Errorf("supply.max_top_holders must be positive")
	}
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("archive.dsn is required when archive is enabled")
	}
	if c.Classifier.CEXSignalEnabled && c.Classifier.CEXSignalEndpoint == "" {
		return fmt.Errorf("classifier.cex_signal_endpoint is required when the signal is enabled")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "tokenwatch-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if len(cfg.Filters.AllowedChains) == 0 {
		cfg.Filters.AllowedChains = []string{"solana", "ethereum", "binance-smart-chain"}
	}
	if cfg.Filters.MinLiquidityUSD == "" {
		cfg.Filters.MinLiquidityUSD = "5000"
	}
	if cfg.Filters.MinAgeDays == 0 {
		cfg.Filters.MinAgeDays = 3
	}
	if cfg.Filters.MatchDenyListByName == nil {
		enabled := true
		cfg.Filters.MatchDenyListByName = &enabled
	}
	if cfg.RugCheck.Endpoint == "" {
		cfg.RugCheck.Endpoint = "https://rugcheck.xyz/api/token"
	}
	if cfg.RugCheck.MinScore == 0 {
		cfg.RugCheck.MinScore = 80
	}
	if cfg.RugCheck.TimeoutSec == 0 {
		cfg.RugCheck.TimeoutSec = 5
	}
	if cfg.Supply.MaxTopHolderPct == 0 {
		cfg.Supply.MaxTopHolderPct = 20
	}
	if cfg.Supply.MaxTopHolders == 0 {
		cfg.Supply.MaxTopHolders = 3
	}
	if cfg.Supply.TimeoutSec == 0 {
		cfg.Supply.TimeoutSec = 5
	}
	if cfg.Classifier.PumpThresholdPct == 0 {
		cfg.Classifier.PumpThresholdPct = 50
	}
	if cfg.Classifier.RugLiquidityDropPct == 0 {
		cfg.Classifier.RugLiquidityDropPct = 80
	}
	if cfg.Classifier.RugPriceDropPct == 0 {
		cfg.Classifier.RugPriceDropPct = 80
	}
	if cfg.Classifier.CEXSignalTimeoutSec == 0 {
		cfg.Classifier.CEXSignalTimeoutSec = 5
	}
	if cfg.DexScreener.Endpoint == "" {
		cfg.DexScreener.Endpoint = "https://api.dexscreener.com"
	}
	if cfg.DexScreener.TimeoutSec == 0 {
		cfg.DexScreener.TimeoutSec = 10
	}
	if cfg.Trading.TimeoutSec == 0 {
		cfg.Trading.TimeoutSec = 10
	}
	if cfg.Watchlist.PollIntervalSec == 0 {
		cfg.Watchlist.PollIntervalSec = 60
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = ":8080"
	}
	if cfg.Archive.BatchSize == 0 {
		cfg.Archive.BatchSize = 500
	}
	if cfg.Archive.FlushIntervalSec == 0 {
		cfg.Archive.FlushIntervalSec = 5
	}
}
