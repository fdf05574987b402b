package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the ad engine.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Geo        GeoConfig
	Serving    ServingConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ClickHouseConfig configures the analytics event sink.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	Username string
	Password string
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GeoConfig configures GeoIP lookup for viewer location targeting.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
}

// ServingConfig holds serving costs and caps.
type ServingConfig struct {
	// CostPerImpression and CostPerClick are charged against an ad's
	// daily budget and lifetime spend per recorded event.
	CostPerImpression float64
	CostPerClick      float64

	// FreqCapPerViewerPerDay limits how many times one viewer sees one
	// ad per day. Zero disables capping.
	FreqCapPerViewerPerDay int
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("AD_ENGINE_HTTP_ADDR", ":8080"),
			Env:             getEnv("AD_ENGINE_ENV", "development"),
			ShutdownTimeout: getDurationEnv("AD_ENGINE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("AD_ENGINE_DB_ENABLED", false),
			Host:     getEnv("AD_ENGINE_DB_HOST", "localhost"),
			Port:     getIntEnv("AD_ENGINE_DB_PORT", 5432),
			User:     getEnv("AD_ENGINE_DB_USER", "adengine"),
			Password: getEnv("AD_ENGINE_DB_PASSWORD", "adengine_secret"),
			DBName:   getEnv("AD_ENGINE_DB_NAME", "adengine"),
			SSLMode:  getEnv("AD_ENGINE_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("AD_ENGINE_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("AD_ENGINE_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("AD_ENGINE_REDIS_ENABLED", false),
			Addr:     getEnv("AD_ENGINE_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("AD_ENGINE_REDIS_PASSWORD", ""),
			DB:       getIntEnv("AD_ENGINE_REDIS_DB", 0),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("AD_ENGINE_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("AD_ENGINE_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("AD_ENGINE_CLICKHOUSE_DB", "default"),
			Username: getEnv("AD_ENGINE_CLICKHOUSE_USER", "default"),
			Password: getEnv("AD_ENGINE_CLICKHOUSE_PASSWORD", ""),
		},
		Log: LogConfig{
			Level:  getEnv("AD_ENGINE_LOG_LEVEL", "info"),
			Format: getEnv("AD_ENGINE_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("AD_ENGINE_METRICS_ENABLED", true),
			Path:    getEnv("AD_ENGINE_METRICS_PATH", "/metrics"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("AD_ENGINE_GEO_ENABLED", false),
			DatabasePath: getEnv("AD_ENGINE_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
		},
		Serving: ServingConfig{
			CostPerImpression:      getFloatEnv("AD_ENGINE_COST_PER_IMPRESSION", 0.01),
			CostPerClick:           getFloatEnv("AD_ENGINE_COST_PER_CLICK", 0.50),
			FreqCapPerViewerPerDay: getIntEnv("AD_ENGINE_FREQ_CAP_PER_DAY", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent.
func (c *Config) Validate() error {
	if c.Serving.CostPerImpression < 0 || c.Serving.CostPerClick < 0 {
		return fmt.Errorf("serving costs must not be negative")
	}
	if c.Serving.FreqCapPerViewerPerDay < 0 {
		return fmt.Errorf("AD_ENGINE_FREQ_CAP_PER_DAY must not be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
