package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvConfigFile      = "ARBX_CONFIG"
	EnvAdminAccount    = "ARBX_ADMIN_ACCOUNT"
	EnvProfitRecipient = "ARBX_PROFIT_RECIPIENT"
)

// LoadEnv loads environment variables from a .env file if present.
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value.
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv fails when the variable is unset.
func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

// ApplyEnvOverrides folds environment values over a loaded config.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvAdminAccount); v != "" {
		cfg.AdminAccount = v
	}
	if v := os.Getenv(EnvProfitRecipient); v != "" {
		cfg.ProfitRecipient = v
	}
}
