// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AggregationMode controls how positions are grouped for concentration
// metrics.
type AggregationMode string

const (
	// AggregateByInstrument sums positions on the same instrument across
	// venues before weighting, so one instrument contributes once to HHI.
	AggregateByInstrument AggregationMode = "instrument"
	// AggregateByInstrumentVenue keeps venue-level granularity.
	AggregateByInstrumentVenue AggregationMode = "instrument_venue"
)

// AnalyticsConfig holds tunables for the analytics calculators.
type AnalyticsConfig struct {
	CycleInterval   time.Duration   // Periodic cycle cadence
	RiskWindowSize  int             // Rolling window length in snapshots
	MinReturnObs    int             // Minimum return observations for VaR
	AggregationMode AggregationMode // Exposure grouping mode
	Retention       time.Duration   // How long stored snapshots and ticks are kept
}

// BackupConfig holds S3 database backup settings.
type BackupConfig struct {
	Enabled  bool
	Bucket   string
	Prefix   string
	Region   string
	Schedule string // cron spec, e.g. "@every 6h"
}

// FeedConfig holds market data feed settings.
type FeedConfig struct {
	Enabled bool
	Symbols []string // lowercase binance stream symbols, e.g. "btcusdt"
}

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the sqlite databases, always absolute
	Port      int
	LogLevel  string
	DevMode   bool
	Analytics AnalyticsConfig
	Backup    BackupConfig
	Feed      FeedConfig
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("VIGIL_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory %q: %w", dataDir, err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %q: %w", absDataDir, err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvInt("PORT", 8090),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvBool("DEV_MODE", false),
		Analytics: AnalyticsConfig{
			CycleInterval:   getEnvDuration("ANALYTICS_CYCLE_INTERVAL", 60*time.Second),
			RiskWindowSize:  getEnvInt("RISK_WINDOW_SIZE", 1440),
			MinReturnObs:    getEnvInt("RISK_MIN_RETURN_OBS", 2),
			AggregationMode: AggregationMode(getEnv("EXPOSURE_AGGREGATE_BY", string(AggregateByInstrument))),
			Retention:       getEnvDuration("HISTORY_RETENTION", 30*24*time.Hour),
		},
		Backup: BackupConfig{
			Enabled:  getEnvBool("BACKUP_ENABLED", false),
			Bucket:   getEnv("BACKUP_S3_BUCKET", ""),
			Prefix:   getEnv("BACKUP_S3_PREFIX", "vigil"),
			Region:   getEnv("BACKUP_S3_REGION", "eu-central-1"),
			Schedule: getEnv("BACKUP_SCHEDULE", "@every 6h"),
		},
		Feed: FeedConfig{
			Enabled: getEnvBool("FEED_ENABLED", false),
			Symbols: splitList(getEnv("FEED_SYMBOLS", "btcusdt,ethusdt")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Analytics.AggregationMode {
	case AggregateByInstrument, AggregateByInstrumentVenue:
	default:
		return fmt.Errorf("invalid EXPOSURE_AGGREGATE_BY value %q", c.Analytics.AggregationMode)
	}
	if c.Analytics.RiskWindowSize < 2 {
		return fmt.Errorf("RISK_WINDOW_SIZE must be at least 2, got %d", c.Analytics.RiskWindowSize)
	}
	if c.Analytics.MinReturnObs < 2 {
		return fmt.Errorf("RISK_MIN_RETURN_OBS must be at least 2, got %d", c.Analytics.MinReturnObs)
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("BACKUP_S3_BUCKET is required when backups are enabled")
	}
	return nil
}

// SnapshotDBPath returns the path to the portfolio snapshot database.
func (c *Config) SnapshotDBPath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// MarketDBPath returns the path to the market tick database.
func (c *Config) MarketDBPath() string {
	return filepath.Join(c.DataDir, "market.db")
}

// AnalyticsDBPath returns the path to the analytics cache database.
func (c *Config) AnalyticsDBPath() string {
	return filepath.Join(c.DataDir, "analytics.db")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
