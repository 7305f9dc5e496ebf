package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/hawkeye-trading/hawkeye/internal/alerts"
	"github.com/hawkeye-trading/hawkeye/internal/chain"
	"github.com/hawkeye-trading/hawkeye/internal/dedup"
	"github.com/hawkeye-trading/hawkeye/internal/execution"
	"github.com/hawkeye-trading/hawkeye/internal/learner"
	"github.com/hawkeye-trading/hawkeye/internal/position"
	"github.com/hawkeye-trading/hawkeye/internal/predict"
	"github.com/hawkeye-trading/hawkeye/internal/risk"
	"github.com/hawkeye-trading/hawkeye/internal/safety"
)

// Config is the root configuration structure.
//
// Component packages that take plain scalars expose their own config
// structs and are embedded directly. Components whose configs carry
// decimal or duration fields get a local mirror here with YAML-friendly
// scalars and a converter method.
type Config struct {
	General    GeneralConfig          `yaml:"general"`
	Trading    TradingConfig          `yaml:"trading"`
	Chain      ChainConfig            `yaml:"chain"`
	Feed       chain.FeedConfig       `yaml:"feed"`
	Dedup      DedupConfig            `yaml:"dedup"`
	Safety     safety.Config          `yaml:"safety"`
	RugRisk    safety.RugRiskConfig   `yaml:"rug_risk"`
	Honeypot   safety.HoneypotConfig  `yaml:"honeypot"`
	Entry      predict.EntryConfig    `yaml:"entry_predictor"`
	Cascade    predict.CascadeConfig  `yaml:"cascade_sentinel"`
	Execution  ExecutionConfig        `yaml:"execution"`
	Exits      position.MonitorConfig `yaml:"exits"`
	Risk       risk.Config            `yaml:"risk"`
	Learner    learner.Defaults       `yaml:"thresholds"`
	ClickHouse ClickHouseConfig       `yaml:"clickhouse"`
	Telegram   alerts.Config          `yaml:"telegram"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
	ListenAddr  string `yaml:"listen_addr"`
}

type TradingConfig struct {
	InitialBalanceSOL float64 `yaml:"initial_balance_sol"`
	MaxOpenPositions  int     `yaml:"max_open_positions"`
	StatsIntervalS    int     `yaml:"stats_interval_s"`
	HistoryDir        string  `yaml:"history_dir"`
}

// ChainConfig mirrors chain.RPCConfig with millisecond timeouts.
type ChainConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	WSEndpoint   string  `yaml:"ws_endpoint"`
	TimeoutMs    int     `yaml:"timeout_ms"`
	MaxRetries   int     `yaml:"max_retries"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// RPC converts to the chain package's config.
func (c ChainConfig) RPC() chain.RPCConfig {
	return chain.RPCConfig{
		Endpoint:     c.Endpoint,
		WSEndpoint:   c.WSEndpoint,
		Timeout:      time.Duration(c.TimeoutMs) * time.Millisecond,
		MaxRetries:   c.MaxRetries,
		RateLimitRPS: c.RateLimitRPS,
	}
}

// DedupConfig mirrors dedup.Config with a seconds-based TTL.
type DedupConfig struct {
	TTLSeconds    int    `yaml:"ttl_seconds"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// Seen converts to the dedup package's config.
func (c DedupConfig) Seen() dedup.Config {
	return dedup.Config{
		TTL:           time.Duration(c.TTLSeconds) * time.Second,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
	}
}

// ExecutionConfig mirrors execution.Config with float amounts.
type ExecutionConfig struct {
	DryRun    bool    `yaml:"dry_run"`
	UseTips   bool    `yaml:"use_tips"`
	TipSOL    float64 `yaml:"tip_sol"`
	AmountSOL float64 `yaml:"amount_sol"`
	TimeoutMs int     `yaml:"timeout_ms"`
}

// Gateway converts to the execution package's config.
func (c ExecutionConfig) Gateway() execution.Config {
	return execution.Config{
		DryRun:    c.DryRun,
		UseTips:   c.UseTips,
		TipSOL:    decimal.NewFromFloat(c.TipSOL),
		AmountSOL: decimal.NewFromFloat(c.AmountSOL),
		TimeoutMs: c.TimeoutMs,
	}
}

type ClickHouseConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DSN            string `yaml:"dsn"`
	BatchSize      int    `yaml:"batch_size"`
	FlushIntervalS int    `yaml:"flush_interval_s"`
}

// Load reads and parses a YAML configuration file. Environment variables
// in the file are expanded before parsing, so secrets like
// ${TELEGRAM_BOT_TOKEN} stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a fully populated development configuration.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			InstanceID:  "hawkeye-1",
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "json",
			ListenAddr:  ":8080",
		},
		Trading: TradingConfig{
			InitialBalanceSOL: 10.0,
			MaxOpenPositions:  1,
			StatsIntervalS:    30,
			HistoryDir:        "data",
		},
		Chain: ChainConfig{
			Endpoint:     "https://api.mainnet-beta.solana.com",
			WSEndpoint:   "wss://api.mainnet-beta.solana.com",
			TimeoutMs:    10000,
			MaxRetries:   3,
			RateLimitRPS: 10,
		},
		Feed:     chain.DefaultFeedConfig(),
		Dedup:    DedupConfig{TTLSeconds: 600},
		Safety:   safety.DefaultConfig(),
		RugRisk:  safety.DefaultRugRiskConfig(),
		Honeypot: safety.DefaultHoneypotConfig(),
		Entry:    predict.DefaultEntryConfig(),
		Cascade:  predict.DefaultCascadeConfig(),
		Execution: ExecutionConfig{
			DryRun:    true,
			UseTips:   true,
			TipSOL:    0.01,
			AmountSOL: 0.05,
			TimeoutMs: 10000,
		},
		Exits:   position.DefaultMonitorConfig(),
		Risk:    risk.DefaultConfig(),
		Learner: learner.DefaultDefaults(),
		ClickHouse: ClickHouseConfig{
			Enabled:        false,
			DSN:            "clickhouse://localhost:9000/hawkeye",
			BatchSize:      100,
			FlushIntervalS: 10,
		},
		Telegram: alerts.DefaultConfig(),
	}
}

// applyDefaults fills fields a sparse YAML file left at their zero value.
// Booleans that default to true are handled by starting from Default()
// before unmarshalling.
func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "hawkeye-1"
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
	if cfg.General.ListenAddr == "" {
		cfg.General.ListenAddr = ":8080"
	}
	if cfg.Trading.InitialBalanceSOL == 0 {
		cfg.Trading.InitialBalanceSOL = 10.0
	}
	if cfg.Trading.MaxOpenPositions == 0 {
		cfg.Trading.MaxOpenPositions = 1
	}
	if cfg.Trading.StatsIntervalS == 0 {
		cfg.Trading.StatsIntervalS = 30
	}
	if cfg.Trading.HistoryDir == "" {
		cfg.Trading.HistoryDir = "data"
	}
	if cfg.Chain.TimeoutMs == 0 {
		cfg.Chain.TimeoutMs = 10000
	}
	if cfg.Dedup.TTLSeconds == 0 {
		cfg.Dedup.TTLSeconds = 600
	}
	if cfg.Execution.AmountSOL == 0 {
		cfg.Execution.AmountSOL = 0.05
	}
	if cfg.Execution.TimeoutMs == 0 {
		cfg.Execution.TimeoutMs = 10000
	}
	if cfg.ClickHouse.DSN == "" {
		cfg.ClickHouse.DSN = "clickhouse://localhost:9000/hawkeye"
	}
	if cfg.ClickHouse.BatchSize == 0 {
		cfg.ClickHouse.BatchSize = 100
	}
	if cfg.ClickHouse.FlushIntervalS == 0 {
		cfg.ClickHouse.FlushIntervalS = 10
	}
}

// Validate rejects configurations that would trade incorrectly rather
// than merely suboptimally.
func (c *Config) Validate() error {
	if c.Safety.Threshold < 0 || c.Safety.Threshold > 100 {
		return fmt.Errorf("safety.threshold must be 0-100, got %d", c.Safety.Threshold)
	}
	if c.Entry.MinConfidence < 0 || c.Entry.MinConfidence > 1 {
		return fmt.Errorf("entry_predictor.min_confidence must be 0-1, got %g", c.Entry.MinConfidence)
	}
	if c.Cascade.MinVirality < 0 || c.Cascade.MinVirality > 100 {
		return fmt.Errorf("cascade_sentinel.min_virality must be 0-100, got %d", c.Cascade.MinVirality)
	}
	if c.Execution.AmountSOL <= 0 {
		return fmt.Errorf("execution.amount_sol must be positive, got %g", c.Execution.AmountSOL)
	}
	if c.Execution.TipSOL < 0 {
		return fmt.Errorf("execution.tip_sol must not be negative, got %g", c.Execution.TipSOL)
	}
	if c.Trading.MaxOpenPositions < 1 {
		return fmt.Errorf("trading.max_open_positions must be at least 1, got %d", c.Trading.MaxOpenPositions)
	}
	if c.Exits.Rules.TakeProfitPct <= 0 {
		return fmt.Errorf("exits.rules.take_profit_pct must be positive, got %g", c.Exits.Rules.TakeProfitPct)
	}
	if c.Exits.Rules.StopLossPct <= 0 {
		return fmt.Errorf("exits.rules.stop_loss_pct must be positive, got %g", c.Exits.Rules.StopLossPct)
	}
	for _, programID := range c.Feed.ProgramIDs {
		if err := chain.ValidatePubkey(programID); err != nil {
			return fmt.Errorf("feed.program_ids: %w", err)
		}
	}
	return nil
}
