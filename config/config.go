// Package config loads the engine configuration: a JSON config file for the
// core settings, environment variables for secrets and endpoints, and a YAML
// manifest for the strategy set.
package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the engine-level configuration.
type Config struct {
	// Profit and risk thresholds
	MinProfitThreshold *big.Int `json:"min_profit_threshold"`
	MinProfitBps       uint16   `json:"min_profit_bps"`
	MaxGasPrice        *big.Int `json:"max_gas_price"`
	MaxExposure        *big.Int `json:"max_exposure_per_token"`
	MaxSlippageBps     uint16   `json:"max_slippage_bps"`

	// Lender settings
	LoanPremiumBps uint16 `json:"loan_premium_bps"`

	// Admission control
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Observability
	PrometheusEnabled  bool   `json:"prometheus_enabled"`
	PrometheusEndpoint string `json:"prometheus_endpoint"`

	// Addresses (hex) for the coordinator account and profit recipient
	CoordinatorAccount string `json:"coordinator_account"`
	ProfitRecipient    string `json:"profit_recipient"`
	AdminAccount       string `json:"admin_account"`
}

// RateLimitConfig tunes the optional admission limiter.
type RateLimitConfig struct {
	Enabled           bool          `json:"enabled"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	BurstSize         int           `json:"burst_size"`
	WaitTimeout       time.Duration `json:"wait_timeout"`
}

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	var errs []string

	if c.MinProfitThreshold == nil || c.MinProfitThreshold.Sign() < 0 {
		errs = append(errs, "min_profit_threshold must be set and non-negative")
	}
	if c.MaxGasPrice == nil || c.MaxGasPrice.Sign() <= 0 {
		errs = append(errs, "max_gas_price must be positive")
	}
	if c.LoanPremiumBps >= 10000 {
		errs = append(errs, "loan_premium_bps must be below 10000")
	}
	if c.MaxSlippageBps >= 10000 {
		errs = append(errs, "max_slippage_bps must be below 10000")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, "rate limit requests_per_second must be positive")
		}
		if c.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate limit burst_size must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadConfig reads and validates the JSON config file. An empty path falls
// back to ~/.arbx.json.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".arbx.json")
	}

	file, err := os.Open(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns a config suitable for local runs and tests.
func DefaultConfig() *Config {
	return &Config{
		MinProfitThreshold: big.NewInt(0),
		MinProfitBps:       0,
		MaxGasPrice:        big.NewInt(500_000_000_000), // 500 gwei
		MaxExposure:        new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
		MaxSlippageBps:     100,
		LoanPremiumBps:     9,
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 10,
			BurstSize:         100,
			WaitTimeout:       time.Second,
		},
	}
}
