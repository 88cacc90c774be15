// Package config handles loading and validating replay-core configuration from YAML files.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the replay daemon.
type Config struct {
	App     AppConfig     `yaml:"app"`
	Data    DataConfig    `yaml:"data"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Clock   ClockConfig   `yaml:"clock"`
	Account AccountConfig `yaml:"account"`
	Profile ProfileConfig `yaml:"profile"`
	API     APIConfig     `yaml:"api"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Env           string `yaml:"env"`
	LogLevel      string `yaml:"logLevel"`
	LogFile       string `yaml:"logFile"`
	LogMaxSizeMB  int    `yaml:"logMaxSizeMB"`
	LogMaxBackups int    `yaml:"logMaxBackups"`
	LogMaxAgeDays int    `yaml:"logMaxAgeDays"`
}

// DataConfig points at the candle database and the default instrument.
type DataConfig struct {
	DSN       string `yaml:"dsn"` // path to the SQLite candle file, or ":memory:"
	Symbol    string `yaml:"symbol"`
	Timeframe string `yaml:"timeframe"`
}

// BufferConfig holds candle buffer sizing parameters.
type BufferConfig struct {
	WarmupBars         int    `yaml:"warmupBars"`
	VisibleCandles     int    `yaml:"visibleCandles"`
	LookaheadThreshold int    `yaml:"lookaheadThreshold"`
	ChunkSize          int    `yaml:"chunkSize"`
	FallbackTimeframe  string `yaml:"fallbackTimeframe"` // finer timeframe for partial-bar rebuilds
}

// ClockConfig holds simulation clock defaults.
type ClockConfig struct {
	SpeedMs int `yaml:"speedMs"` // milliseconds of wall time per simulated bar
}

// AccountConfig holds the simulated brokerage account parameters.
type AccountConfig struct {
	InitialBalance float64 `yaml:"initialBalance"`
	Currency       string  `yaml:"currency"`
	Leverage       float64 `yaml:"leverage"`
	StopOutPercent float64 `yaml:"stopOutPercent"`
}

// ProfileConfig controls where session snapshots are persisted.
type ProfileConfig struct {
	DSN string `yaml:"dsn"` // path to the profiles SQLite file, or ":memory:"
}

// APIConfig holds the read/command HTTP server settings.
type APIConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listenAddress"`
}

// Load reads and parses a YAML configuration file. A .env file in the working
// directory, if present, is loaded first so environment overrides apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// applyEnv overrides selected fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("REPLAY_DATA_DSN"); v != "" {
		c.Data.DSN = v
	}
	if v := os.Getenv("REPLAY_PROFILE_DSN"); v != "" {
		c.Profile.DSN = v
	}
	if v := os.Getenv("REPLAY_LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
}

// setDefaults applies sensible defaults for optional fields.
func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LogFile == "" {
		c.App.LogFile = "logs/replayd.log"
	}
	if c.App.LogMaxSizeMB == 0 {
		c.App.LogMaxSizeMB = 50
	}
	if c.App.LogMaxBackups == 0 {
		c.App.LogMaxBackups = 10
	}
	if c.App.LogMaxAgeDays == 0 {
		c.App.LogMaxAgeDays = 30
	}
	if c.Data.Timeframe == "" {
		c.Data.Timeframe = "H1"
	}
	if c.Buffer.WarmupBars == 0 {
		c.Buffer.WarmupBars = 200
	}
	if c.Buffer.VisibleCandles == 0 {
		c.Buffer.VisibleCandles = 1000
	}
	if c.Buffer.LookaheadThreshold == 0 {
		c.Buffer.LookaheadThreshold = 50
	}
	if c.Buffer.ChunkSize == 0 {
		c.Buffer.ChunkSize = 100
	}
	if c.Buffer.FallbackTimeframe == "" {
		c.Buffer.FallbackTimeframe = "M5"
	}
	if c.Clock.SpeedMs == 0 {
		c.Clock.SpeedMs = 1000
	}
	if c.Account.InitialBalance == 0 {
		c.Account.InitialBalance = 10000
	}
	if c.Account.Currency == "" {
		c.Account.Currency = "USD"
	}
	if c.Account.Leverage == 0 {
		c.Account.Leverage = 100
	}
	if c.API.ListenAddress == "" {
		c.API.ListenAddress = "127.0.0.1:8642"
	}
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if c.Data.Symbol == "" {
		return fmt.Errorf("data.symbol is required")
	}
	if c.Clock.SpeedMs < 0 {
		return fmt.Errorf("clock.speedMs must be positive, got %d", c.Clock.SpeedMs)
	}
	if c.Account.InitialBalance < 0 {
		return fmt.Errorf("account.initialBalance must not be negative, got %v", c.Account.InitialBalance)
	}
	if c.Account.Leverage <= 0 {
		return fmt.Errorf("account.leverage must be positive, got %v", c.Account.Leverage)
	}
	if c.Account.StopOutPercent < 0 {
		return fmt.Errorf("account.stopOutPercent must not be negative, got %v", c.Account.StopOutPercent)
	}
	return nil
}
