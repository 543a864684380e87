// Package config handles loading and validating configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"sentineld/internal/domain"
)

// Config holds all configuration values for the sentinel daemon.
type Config struct {
	// Ledger
	LedgerRPCURL string
	LedgerWSURL  string
	Network      domain.Network

	// Priced resource
	PriceURL       string
	RequestTimeout time.Duration

	// Funding and fees
	MinGas        float64
	MinToken      float64
	CheckFee      float64
	CheckInterval time.Duration

	// Insight generator
	InsightURL    string
	InsightAPIKey string

	// Notifications
	TelegramBotToken string

	// Storage
	PostgresDSN   string
	ClickHouseDSN string
	UseMemory     bool

	// HTTP
	APIAddr     string
	MetricsAddr string
}

// Load reads configuration from environment variables with fallback to .env.
// Priority order: environment variables > .env file > defaults.
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		LedgerRPCURL: getEnv("LEDGER_RPC_URL", ""),
		LedgerWSURL:  getEnv("LEDGER_WS_URL", ""),
		Network:      domain.Network(getEnv("LEDGER_NETWORK", string(domain.NetworkTest))),

		PriceURL:       getEnv("PRICE_RESOURCE_URL", ""),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 8)) * time.Second,

		MinGas:        getEnvFloat("MIN_GAS", 0.01),
		MinToken:      getEnvFloat("MIN_TOKEN", 0.01),
		CheckFee:      getEnvFloat("CHECK_FEE", 0.0001),
		CheckInterval: time.Duration(getEnvInt("CHECK_INTERVAL_SECONDS", 30)) * time.Second,

		InsightURL:    getEnv("INSIGHT_URL", ""),
		InsightAPIKey: getEnv("INSIGHT_API_KEY", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		ClickHouseDSN: getEnv("CLICKHOUSE_DSN", ""),
		UseMemory:     getEnvBool("USE_MEMORY", false),

		APIAddr:     getEnv("API_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and enum fields.
func (c *Config) Validate() error {
	if c.PriceURL == "" {
		return fmt.Errorf("PRICE_RESOURCE_URL is required")
	}
	if !c.Network.IsValid() {
		return fmt.Errorf("LEDGER_NETWORK must be %q or %q", domain.NetworkTest, domain.NetworkProduction)
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required unless USE_MEMORY=true")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL_SECONDS must be positive")
	}
	return nil
}

// getEnv reads a string variable with a default.
func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// getEnvInt reads an integer variable with a default.
func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvFloat reads a float variable with a default.
func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool reads a boolean variable with a default.
func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
