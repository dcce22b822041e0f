// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/compass/internal/modules/settings"
)

// Config holds application configuration.
//
// Values come from the environment (optionally a .env file). Settings stored
// in the user database take precedence at runtime; call UpdateFromSettings
// after the databases are open.
type Config struct {
	DataDir         string // Base directory for databases and results
	WatchlistPath   string // One symbol per line, '#' comments
	PolygonAPIKey   string
	PolygonPlan     string // free | starter | developer | advanced
	HistoricalYears int    // Full-download depth for new symbols
	BenchmarkSymbol string // Regime + momentum benchmark

	Capital               float64 // Account equity in EUR
	RiskPerTrade          float64 // EUR risked per position (0 = derive from capital)
	StockAllocation       float64 // Share of capital deployable in stock (0 = all)
	MaxPositions          int
	SizingMethod          string // risk_based | slot_based
	EnableExtraIndicators bool   // MACD/Stoch/CCI/... columns

	LogLevel string
	Port     int
	DevMode  bool

	// S3 backup (optional; disabled when bucket is empty). Access keys
	// override the default AWS credential chain when set.
	BackupBucket    string
	BackupPrefix    string
	AWSRegion       string
	BackupAccessKey string
	BackupSecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DSS_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		WatchlistPath:   getEnv("DSS_WATCHLIST", filepath.Join("config", "watchlist.txt")),
		PolygonAPIKey:   getEnv("POLYGON_API_KEY", ""),
		PolygonPlan:     getEnv("POLYGON_PLAN", "free"),
		HistoricalYears: getEnvAsInt("DSS_HISTORICAL_YEARS", 5),
		BenchmarkSymbol: getEnv("DSS_BENCHMARK", "SPY"),

		Capital:               getEnvAsFloat("DSS_CAPITAL", 10000),
		RiskPerTrade:          getEnvAsFloat("DSS_RISK_PER_TRADE", 0),
		StockAllocation:       getEnvAsFloat("DSS_STOCK_ALLOCATION", 0),
		MaxPositions:          getEnvAsInt("DSS_MAX_POSITIONS", 5),
		SizingMethod:          getEnv("DSS_SIZING_METHOD", "risk_based"),
		EnableExtraIndicators: getEnvAsBool("DSS_EXTRA_INDICATORS", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("DSS_PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		BackupBucket:    getEnv("DSS_BACKUP_BUCKET", ""),
		BackupPrefix:    getEnv("DSS_BACKUP_PREFIX", "compass"),
		AWSRegion:       getEnv("AWS_REGION", "eu-central-1"),
		BackupAccessKey: getEnv("DSS_BACKUP_ACCESS_KEY", ""),
		BackupSecretKey: getEnv("DSS_BACKUP_SECRET_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MarketDBPath returns the path of the market bar store.
func (c *Config) MarketDBPath() string {
	return filepath.Join(c.DataDir, "market.db")
}

// UserDBPath returns the path of the user store (settings, journal).
func (c *Config) UserDBPath() string {
	return filepath.Join(c.DataDir, "dss.db")
}

// UpdateFromSettings updates configuration from the settings database.
// Settings DB values take precedence over environment variables.
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	capital, err := settingsRepo.GetFloat("capital", c.Capital)
	if err != nil {
		return fmt.Errorf("failed to get capital from settings: %w", err)
	}
	c.Capital = capital

	risk, err := settingsRepo.GetFloat("risk_per_trade", c.RiskPerTrade)
	if err != nil {
		return fmt.Errorf("failed to get risk_per_trade from settings: %w", err)
	}
	c.RiskPerTrade = risk

	allocation, err := settingsRepo.GetFloat("stock_allocation", c.StockAllocation)
	if err != nil {
		return fmt.Errorf("failed to get stock_allocation from settings: %w", err)
	}
	c.StockAllocation = allocation

	maxPositions, err := settingsRepo.GetInt("max_positions", c.MaxPositions)
	if err != nil {
		return fmt.Errorf("failed to get max_positions from settings: %w", err)
	}
	c.MaxPositions = maxPositions

	sizing, err := settingsRepo.Get("sizing_method")
	if err != nil {
		return fmt.Errorf("failed to get sizing_method from settings: %w", err)
	}
	if sizing != nil && *sizing != "" {
		c.SizingMethod = normalizeSizingMethod(*sizing)
	}

	plan, err := settingsRepo.Get("polygon_plan")
	if err != nil {
		return fmt.Errorf("failed to get polygon_plan from settings: %w", err)
	}
	if plan != nil && *plan != "" {
		c.PolygonPlan = *plan
	}

	apiKey, err := settingsRepo.Get("polygon_api_key")
	if err != nil {
		return fmt.Errorf("failed to get polygon_api_key from settings: %w", err)
	}
	// Only use settings DB value if it's not empty (settings DB takes precedence)
	if apiKey != nil && *apiKey != "" {
		c.PolygonAPIKey = *apiKey
	}

	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.SizingMethod {
	case "risk_based", "slot_based":
	default:
		c.SizingMethod = normalizeSizingMethod(c.SizingMethod)
	}
	if c.MaxPositions < 1 {
		return fmt.Errorf("max positions must be at least 1, got %d", c.MaxPositions)
	}
	return nil
}

// normalizeSizingMethod maps legacy setting values onto the two supported
// sizing methods.
func normalizeSizingMethod(value string) string {
	switch value {
	case "slot_based", "slots", "slot":
		return "slot_based"
	default:
		return "risk_based"
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
