package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a config that passes validation. Tests mutate single
// fields to exercise individual rules.
func validConfig() *Config {
	return &Config{
		ServerAddr:            ":8080",
		LogLevel:              "info",
		DatabaseURL:           "postgres://localhost:5432/peelybot",
		NATSURL:               "nats://localhost:4222",
		SolanaRPCURL:          "https://api.mainnet-beta.solana.com",
		TradeAPIURL:           "https://pumpportal.fun/api/trade-local",
		TradePool:             "pump",
		Slippage:              10,
		PriorityFee:           0.00001,
		MetadataRPCURL:        "https://api.mainnet-beta.solana.com",
		PlatformWalletAddress: "So11111111111111111111111111111111111111112",
		MaxRetries:            3,
		BaseRetryDelay:        time.Second,
	}
}

func TestValidate_Valid(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_MissingRequired(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database url", func(c *Config) { c.DatabaseURL = "" }},
		{"missing solana rpc url", func(c *Config) { c.SolanaRPCURL = "" }},
		{"missing trade api url", func(c *Config) { c.TradeAPIURL = "" }},
		{"missing platform wallet", func(c *Config) { c.PlatformWalletAddress = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_InvalidPlatformWallet(t *testing.T) {
	cfg := validConfig()
	cfg.PlatformWalletAddress = "not-a-solana-address-0OIl"
	assert.Error(t, cfg.Validate())
}

func TestValidate_Bounds(t *testing.T) {
	cfg := validConfig()
	cfg.Slippage = 150
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.PriorityFee = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.MaxRetries = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.BaseRetryDelay = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/peelybot_test")
	t.Setenv("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	t.Setenv("PLATFORM_WALLET_ADDRESS", "So11111111111111111111111111111111111111112")
	t.Setenv("MAX_SUBMIT_RETRIES", "5")
	t.Setenv("BASE_RETRY_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/peelybot_test", cfg.DatabaseURL)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.SolanaRPCURL)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.BaseRetryDelay)

	// Defaults
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "pump", cfg.TradePool)
	assert.Equal(t, float64(10), cfg.Slippage)
	// Metadata endpoint falls back to the RPC endpoint
	assert.Equal(t, cfg.SolanaRPCURL, cfg.MetadataRPCURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SOLANA_RPC_URL", "")
	t.Setenv("PLATFORM_WALLET_ADDRESS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL")
	assert.Contains(t, err.Error(), "PLATFORM_WALLET_ADDRESS")
}
