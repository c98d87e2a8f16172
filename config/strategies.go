package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/arbx/types"
)

// StrategyManifest is the YAML strategy set loaded at startup.
type StrategyManifest struct {
	Strategies []StrategyEntry `yaml:"strategies"`
}

// StrategyEntry is one strategy in the manifest. Cooldown is a duration
// string such as "30s".
type StrategyEntry struct {
	ID             string `yaml:"id"`
	Handler        string `yaml:"handler"`
	Active         bool   `yaml:"active"`
	MinProfit      string `yaml:"min_profit"`
	MaxSlippageBps uint16 `yaml:"max_slippage_bps"`
	GasCeiling     string `yaml:"gas_ceiling"`
	Cooldown       string `yaml:"cooldown"`
}

// LoadStrategies parses a strategy manifest into engine strategy configs.
func LoadStrategies(path string) ([]types.StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy manifest: %w", err)
	}

	var manifest StrategyManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse strategy manifest: %w", err)
	}

	configs := make([]types.StrategyConfig, 0, len(manifest.Strategies))
	for _, entry := range manifest.Strategies {
		if entry.ID == "" {
			return nil, fmt.Errorf("strategy manifest entry missing id")
		}
		cfg := types.StrategyConfig{
			ID:             entry.ID,
			Handler:        common.HexToAddress(entry.Handler),
			Active:         entry.Active,
			MaxSlippageBps: entry.MaxSlippageBps,
		}
		if entry.Cooldown != "" {
			d, err := time.ParseDuration(entry.Cooldown)
			if err != nil {
				return nil, fmt.Errorf("strategy %s: invalid cooldown %q", entry.ID, entry.Cooldown)
			}
			cfg.Cooldown = d
		}
		if entry.MinProfit != "" {
			v, ok := new(big.Int).SetString(entry.MinProfit, 10)
			if !ok {
				return nil, fmt.Errorf("strategy %s: invalid min_profit %q", entry.ID, entry.MinProfit)
			}
			cfg.MinProfit = v
		}
		if entry.GasCeiling != "" {
			v, ok := new(big.Int).SetString(entry.GasCeiling, 10)
			if !ok {
				return nil, fmt.Errorf("strategy %s: invalid gas_ceiling %q", entry.ID, entry.GasCeiling)
			}
			cfg.GasCeiling = v
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
