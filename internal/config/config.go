// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for all databases (always absolute)
	Port             int
	DevMode          bool
	LogLevel         string
	StartingCash     string        // Seed cash balance for new portfolios, decimal string
	LockTimeout      time.Duration // Max wait for a portfolio write lock
	SweepSchedule    string        // Cron schedule for the limit-order sweep
	MarketDataURL    string        // Base URL of the market data service
	MarketDataWSURL  string        // WebSocket URL for streaming quotes ("" disables the stream)
	MarketDataAPIKey string
	HistoryCacheTTL  time.Duration // TTL for cached historical series
	Backup           *BackupConfig
}

// BackupConfig holds S3 backup configuration
type BackupConfig struct {
	Enabled       bool
	Bucket        string
	Endpoint      string // S3-compatible endpoint ("" for AWS)
	Region        string
	AccessKey     string
	SecretKey     string
	Schedule      string // Cron schedule for automatic backups
	RetentionDays int    // Delete backups older than this many days (the newest few are always kept)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PAPERDESK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		Port:             getEnvAsInt("PAPERDESK_PORT", 8001),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		StartingCash:     getEnv("STARTING_CASH", "100000.00"),
		LockTimeout:      time.Duration(getEnvAsInt("LOCK_TIMEOUT_SECONDS", 5)) * time.Second,
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "@every 30s"),
		MarketDataURL:    getEnv("MARKET_DATA_URL", "http://localhost:9100"),
		MarketDataWSURL:  getEnv("MARKET_DATA_WS_URL", ""),
		MarketDataAPIKey: getEnv("MARKET_DATA_API_KEY", ""),
		HistoryCacheTTL:  time.Duration(getEnvAsInt("HISTORY_CACHE_TTL_MINUTES", 15)) * time.Minute,
		Backup:           loadBackupConfig(),
	}

	return cfg, nil
}

// loadBackupConfig reads S3 backup settings from the environment
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:       getEnvAsBool("BACKUP_ENABLED", false),
		Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
		Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:        getEnv("BACKUP_S3_REGION", "auto"),
		AccessKey:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
		SecretKey:     getEnv("BACKUP_S3_SECRET_KEY", ""),
		Schedule:      getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
		RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 7),
	}
}

// getEnv retrieves an environment variable or returns a fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as int or returns a fallback
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as bool or returns a fallback
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
