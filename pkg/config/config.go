// Package config loads the service configuration from YAML with environment
// overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation.
const (
	DefaultModel            = "moonshotai/kimi-k2-thinking"
	DefaultMaxIterations    = 6
	DefaultApprovalTimeout  = 10 * time.Minute
	DefaultMarketDataTTL    = 15 * time.Minute
	DefaultMinTrades        = 3
	DefaultBind             = "127.0.0.1:8787"
	DefaultStoragePath      = "stratagem.db"
	DefaultLogDir           = "logs"
	DefaultHistoryTurns     = 20
	DefaultRequestTimeout   = 2 * time.Minute
	DefaultRequestsPerMin   = 30
	DefaultBacktestCandles  = 500
	DefaultMarketDataSource = "https://api.binance.com"
)

// Config is the complete service configuration.
type Config struct {
	Model        ModelConfig        `yaml:"model"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Approval     ApprovalConfig     `yaml:"approval"`
	MarketData   MarketDataConfig   `yaml:"market_data"`
	Validator    ValidatorConfig    `yaml:"validator"`
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Bus          BusConfig          `yaml:"bus"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ModelConfig configures the planner model client.
type ModelConfig struct {
	Name           string        `yaml:"name"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RequestsPerMin int           `yaml:"requests_per_minute"`
}

// OrchestratorConfig bounds the planning loop.
type OrchestratorConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	HistoryTurns  int `yaml:"history_turns"`
}

// ApprovalConfig configures the human approval gate.
type ApprovalConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// MarketDataConfig configures candle fetching and the prerequisite cache.
type MarketDataConfig struct {
	BaseURL   string        `yaml:"base_url"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	Synthetic bool          `yaml:"synthetic"`
}

// ValidatorConfig configures post-action strategy validation.
type ValidatorConfig struct {
	MinTrades int  `yaml:"min_trades"`
	Candles   int  `yaml:"candles"`
	Disabled  bool `yaml:"disabled"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// BusConfig configures the notification bus.
type BusConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Name:           DefaultModel,
			RequestTimeout: DefaultRequestTimeout,
			RequestsPerMin: DefaultRequestsPerMin,
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations: DefaultMaxIterations,
			HistoryTurns:  DefaultHistoryTurns,
		},
		Approval: ApprovalConfig{Timeout: DefaultApprovalTimeout},
		MarketData: MarketDataConfig{
			BaseURL:  DefaultMarketDataSource,
			CacheTTL: DefaultMarketDataTTL,
		},
		Validator: ValidatorConfig{
			MinTrades: DefaultMinTrades,
			Candles:   DefaultBacktestCandles,
		},
		Server:  ServerConfig{Bind: DefaultBind},
		Storage: StorageConfig{Path: DefaultStoragePath},
		Logging: LoggingConfig{Dir: DefaultLogDir, Level: "info"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STRATAGEM_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("STRATAGEM_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("STRATAGEM_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("STRATAGEM_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("STRATAGEM_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("STRATAGEM_NATS_URL"); v != "" {
		cfg.Bus.URL = v
	}
	if v := os.Getenv("STRATAGEM_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxIterations = n
		}
	}
	if v := os.Getenv("STRATAGEM_SYNTHETIC_DATA"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MarketData.Synthetic = b
		}
	}
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.Orchestrator.MaxIterations <= 0 {
		return fmt.Errorf("orchestrator.max_iterations must be positive, got %d", c.Orchestrator.MaxIterations)
	}
	if c.Approval.Timeout <= 0 {
		return fmt.Errorf("approval.timeout must be positive, got %s", c.Approval.Timeout)
	}
	if c.MarketData.CacheTTL < 0 {
		return fmt.Errorf("market_data.cache_ttl cannot be negative, got %s", c.MarketData.CacheTTL)
	}
	if c.Validator.MinTrades < 0 {
		return fmt.Errorf("validator.min_trades cannot be negative, got %d", c.Validator.MinTrades)
	}
	if c.Server.Bind == "" {
		return fmt.Errorf("server.bind cannot be empty")
	}
	return nil
}
