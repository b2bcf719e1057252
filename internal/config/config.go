// Package config provides configuration management for the order engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultCooldownMin is used when execution.cooldown_min is unset.
	defaultCooldownMin = 30 * time.Second
	// defaultCooldownMax is used when execution.cooldown_max is unset.
	defaultCooldownMax = 90 * time.Second
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Selection   SelectionConfig   `yaml:"selection"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Storage     StorageConfig     `yaml:"storage"`
	Symbols     []string          `yaml:"symbols"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
	LogPath  string `yaml:"log_path"`  // rotated log file; empty logs to stderr only
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Token       string `yaml:"token"` // bearer token, usually ${RH_TOKEN}
	APIEndpoint string `yaml:"api_endpoint"`
	Timeout     string `yaml:"timeout"` // per-request timeout, e.g. "10s"
	// CircuitBreaker wraps the API client so repeated failures trip open
	// instead of hammering the broker.
	CircuitBreaker bool `yaml:"circuit_breaker"`
}

// SelectionConfig defines contract candidate selection parameters.
type SelectionConfig struct {
	OptionType     string  `yaml:"option_type"`
	ProfitLow      float64 `yaml:"profit_low"`
	ProfitHigh     float64 `yaml:"profit_high"`
	ProfitTarget   float64 `yaml:"profit_target"`
	MinPrice       float64 `yaml:"min_price"`
	MaxCandidates  int     `yaml:"max_candidates"`
	NumExpirations int     `yaml:"num_expirations"`
}

// ExecutionConfig defines round-loop parameters.
type ExecutionConfig struct {
	CooldownMin string `yaml:"cooldown_min"` // e.g. "30s"
	CooldownMax string `yaml:"cooldown_max"` // e.g. "90s"
	MaxRounds   int    `yaml:"max_rounds"`   // 0 means unbounded
}

// DashboardConfig defines the monitoring HTTP server settings.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port
}

// StorageConfig defines run-history storage settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Selection.OptionType == "" {
		c.Selection.OptionType = "call"
	}
	if c.Selection.ProfitLow == 0 && c.Selection.ProfitHigh == 0 {
		c.Selection.ProfitLow = 0.85
		c.Selection.ProfitHigh = 0.95
	}
	if c.Selection.ProfitTarget == 0 {
		c.Selection.ProfitTarget = 0.88
	}
	if c.Selection.MinPrice == 0 {
		c.Selection.MinPrice = 0.05
	}
	if c.Selection.MaxCandidates == 0 {
		c.Selection.MaxCandidates = 2
	}
	if c.Selection.NumExpirations == 0 {
		c.Selection.NumExpirations = 2
	}
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn, or error")
	}

	if !c.IsPaperTrading() && c.Broker.Token == "" {
		return fmt.Errorf("broker.token is required in live mode")
	}
	if c.Broker.Timeout != "" {
		if _, err := time.ParseDuration(c.Broker.Timeout); err != nil {
			return fmt.Errorf("broker.timeout: %w", err)
		}
	}

	s := c.Selection
	if s.OptionType != "call" && s.OptionType != "put" {
		return fmt.Errorf("selection.option_type must be 'call' or 'put'")
	}
	if s.ProfitLow <= 0 || s.ProfitHigh > 1 || s.ProfitLow >= s.ProfitHigh {
		return fmt.Errorf("selection profit band must satisfy 0 < profit_low < profit_high <= 1")
	}
	if s.ProfitTarget < s.ProfitLow || s.ProfitTarget > s.ProfitHigh {
		return fmt.Errorf("selection.profit_target must fall inside the profit band")
	}
	if s.MinPrice < 0 {
		return fmt.Errorf("selection.min_price must not be negative")
	}
	if s.MaxCandidates <= 0 {
		return fmt.Errorf("selection.max_candidates must be positive")
	}
	if s.NumExpirations <= 0 {
		return fmt.Errorf("selection.num_expirations must be positive")
	}

	min, err := c.cooldown(c.Execution.CooldownMin, defaultCooldownMin)
	if err != nil {
		return fmt.Errorf("execution.cooldown_min: %w", err)
	}
	max, err := c.cooldown(c.Execution.CooldownMax, defaultCooldownMax)
	if err != nil {
		return fmt.Errorf("execution.cooldown_max: %w", err)
	}
	if min > max {
		return fmt.Errorf("execution.cooldown_min must not exceed cooldown_max")
	}
	if c.Execution.MaxRounds < 0 {
		return fmt.Errorf("execution.max_rounds must not be negative")
	}

	if c.Dashboard.Enabled && c.Dashboard.Listen == "" {
		return fmt.Errorf("dashboard.listen is required when the dashboard is enabled")
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	for _, symbol := range c.Symbols {
		if strings.TrimSpace(symbol) == "" {
			return fmt.Errorf("symbols must not contain blank entries")
		}
	}

	return nil
}

// IsPaperTrading reports whether the engine runs against the synthetic
// broker instead of the live API.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

func (c *Config) cooldown(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", raw)
	}
	return d, nil
}

// GetCooldownMin returns the lower cooldown bound.
func (c *Config) GetCooldownMin() time.Duration {
	d, err := c.cooldown(c.Execution.CooldownMin, defaultCooldownMin)
	if err != nil {
		return defaultCooldownMin
	}
	return d
}

// GetCooldownMax returns the upper cooldown bound.
func (c *Config) GetCooldownMax() time.Duration {
	d, err := c.cooldown(c.Execution.CooldownMax, defaultCooldownMax)
	if err != nil {
		return defaultCooldownMax
	}
	return d
}

// GetBrokerTimeout returns the per-request broker timeout, defaulting to
// ten seconds.
func (c *Config) GetBrokerTimeout() time.Duration {
	if c.Broker.Timeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(c.Broker.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetStoragePath returns the run-history database path, with a default
// beside the binary.
func (c *Config) GetStoragePath() string {
	if c.Storage.Path == "" {
		return "data/callwheel.db"
	}
	return c.Storage.Path
}
