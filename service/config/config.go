package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Horizon configuration
	HorizonURL        string
	NetworkPassphrase string

	// Faucet configuration
	FriendbotURL string

	// Wallet agent configuration (the external signing service)
	WalletAgentURL string

	// NATS configuration
	NATSURL string

	// Explorer configuration
	ExplorerBaseURL string

	// Transaction validity window (timebounds timeout)
	TxTimeout time.Duration
}

// Default endpoints target the Stellar testnet; the dashboard is a testnet tool.
const (
	DefaultHorizonURL        = "https://horizon-testnet.stellar.org"
	DefaultFriendbotURL      = "https://friendbot.stellar.org"
	DefaultExplorerBaseURL   = "https://stellar.expert/explorer/testnet"
	DefaultNetworkPassphrase = "Test SDF Network ; September 2015"
)

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Horizon configuration
	cfg.HorizonURL = getEnvOrDefault("HORIZON_URL", DefaultHorizonURL)
	cfg.NetworkPassphrase = getEnvOrDefault("NETWORK_PASSPHRASE", DefaultNetworkPassphrase)

	// Faucet configuration
	cfg.FriendbotURL = getEnvOrDefault("FRIENDBOT_URL", DefaultFriendbotURL)

	// Wallet agent configuration
	cfg.WalletAgentURL = getEnvOrDefault("WALLET_AGENT_URL", "http://localhost:8391")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Explorer configuration
	cfg.ExplorerBaseURL = getEnvOrDefault("EXPLORER_BASE_URL", DefaultExplorerBaseURL)

	// Transaction timeout
	txTimeout, err := parseDuration("TX_TIMEOUT", "180s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TxTimeout = txTimeout
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.HorizonURL == "" {
		errs = append(errs, fmt.Errorf("HorizonURL is required"))
	}

	if c.NetworkPassphrase == "" {
		errs = append(errs, fmt.Errorf("NetworkPassphrase is required"))
	}

	if c.FriendbotURL == "" {
		errs = append(errs, fmt.Errorf("FriendbotURL is required"))
	}

	if c.WalletAgentURL == "" {
		errs = append(errs, fmt.Errorf("WalletAgentURL is required"))
	}

	if c.ExplorerBaseURL == "" {
		errs = append(errs, fmt.Errorf("ExplorerBaseURL is required"))
	}

	if c.TxTimeout < time.Second {
		errs = append(errs, fmt.Errorf("TxTimeout must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}
