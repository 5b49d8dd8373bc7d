package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURL string

	// Trade quoting service configuration
	TradeAPIURL string
	TradePool   string
	Slippage    float64
	PriorityFee float64

	// Token metadata service (defaults to the Solana RPC endpoint, which
	// is where getAsset lives on providers like Helius)
	MetadataRPCURL string

	// Platform fee collection wallet
	PlatformWalletAddress string

	// Submission retry configuration
	MaxRetries     int
	BaseRetryDelay time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	// Trade quoting service configuration
	cfg.TradeAPIURL = getEnvOrDefault("TRADE_API_URL", "https://pumpportal.fun/api/trade-local")
	cfg.TradePool = getEnvOrDefault("TRADE_POOL", "pump")

	slippage, err := parseFloat("TRADE_SLIPPAGE", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Slippage = slippage
	}

	priorityFee, err := parseFloat("TRADE_PRIORITY_FEE", 0.00001)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriorityFee = priorityFee
	}

	// Token metadata service
	cfg.MetadataRPCURL = getEnvOrDefault("METADATA_RPC_URL", cfg.SolanaRPCURL)

	// Platform fee collection wallet
	cfg.PlatformWalletAddress = os.Getenv("PLATFORM_WALLET_ADDRESS")
	if cfg.PlatformWalletAddress == "" {
		errs = append(errs, fmt.Errorf("PLATFORM_WALLET_ADDRESS is required"))
	}

	// Submission retry configuration
	maxRetries, err := parseInt("MAX_SUBMIT_RETRIES", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MaxRetries = maxRetries
	}

	baseDelay, err := parseDuration("BASE_RETRY_DELAY", "1s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BaseRetryDelay = baseDelay
	}

	// Surface all environment parsing errors together
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

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.TradeAPIURL == "" {
		errs = append(errs, fmt.Errorf("TradeAPIURL is required"))
	}

	if c.PlatformWalletAddress == "" {
		errs = append(errs, fmt.Errorf("PlatformWalletAddress is required"))
	} else if _, err := solana.PublicKeyFromBase58(c.PlatformWalletAddress); err != nil {
		errs = append(errs, fmt.Errorf("PlatformWalletAddress is not a valid Solana address: %v", err))
	}

	if c.Slippage < 0 || c.Slippage > 100 {
		errs = append(errs, fmt.Errorf("Slippage must be between 0 and 100"))
	}

	if c.PriorityFee < 0 {
		errs = append(errs, fmt.Errorf("PriorityFee cannot be negative"))
	}

	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MaxRetries cannot be negative"))
	}

	if c.BaseRetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("BaseRetryDelay must be positive"))
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

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
