package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Pipeline
	Pipeline PipelineConfig

	// Broker (brokerage REST + streaming API)
	Broker BrokerConfig

	// Advisor (external analysis collaborator)
	Advisor AdvisorConfig

	// Database (window persistence, optional)
	Database DatabaseConfig

	// Redis (snapshot cache + rate limiting, optional)
	Redis RedisConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// PipelineConfig holds tick aggregation and scoring parameters.
type PipelineConfig struct {
	WindowSize          int           // ticks per window, must be >= 2
	Alpha               float64       // hysteresis band around ratio=1
	ADVFactor           float64       // assumed average-daily-volume scale
	WIntensity          float64       // LIXI weight on traded volume
	WADV                float64       // LIXI weight on the ADV factor
	LixiCeiling         float64       // display clamp for LIXI
	HistorySize         int           // completed windows retained in memory
	SyntheticTickPeriod time.Duration // synthetic source tick interval
}

// BrokerConfig holds brokerage API configuration.
type BrokerConfig struct {
	BaseURL           string
	StreamURL         string // websocket endpoint for the live push feed
	APIToken          string
	ConnectionTimeout time.Duration // handshake + health check budget
	PollInterval      time.Duration // polling source cadence
	PollRateLimit     int           // max quote requests per second
}

// AdvisorConfig holds the external analysis collaborator configuration.
type AdvisorConfig struct {
	Enabled     bool
	URL         string
	WindowCount int // most recent N windows sent per request
}

// DatabaseConfig holds PostgreSQL configuration.
// Persistence is optional: an empty URL disables the window store.
type DatabaseConfig struct {
	URL           string
	MaxConns      int
	MinConns      int
	MaxConnLife   time.Duration
	MaxConnIdle   time.Duration
	RetentionDays int // persisted windows older than this are pruned
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8087"),
		Env:  getEnv("ENV", "development"),

		Pipeline: PipelineConfig{
			WindowSize:          getEnvAsInt("WINDOW_SIZE", 4),
			Alpha:               getEnvAsFloat("ALPHA", 1e-5),
			ADVFactor:           getEnvAsFloat("ADV_FACTOR", 5e7),
			WIntensity:          getEnvAsFloat("LIXI_W_INTENSITY", 0.5),
			WADV:                getEnvAsFloat("LIXI_W_ADV", 0.5),
			LixiCeiling:         getEnvAsFloat("LIXI_CEILING", 15),
			HistorySize:         getEnvAsInt("HISTORY_SIZE", 64),
			SyntheticTickPeriod: getEnvAsDuration("SYNTHETIC_TICK_PERIOD", "1s"),
		},

		Broker: BrokerConfig{
			BaseURL:           getEnv("BROKER_BASE_URL", "https://api.tradier.com"),
			StreamURL:         getEnv("BROKER_STREAM_URL", "wss://ws.tradier.com/v1/markets/events"),
			APIToken:          getEnv("BROKER_API_TOKEN", ""),
			ConnectionTimeout: getEnvAsDuration("BROKER_CONNECTION_TIMEOUT", "10s"),
			PollInterval:      getEnvAsDuration("BROKER_POLL_INTERVAL", "2s"),
			PollRateLimit:     getEnvAsInt("BROKER_POLL_RATE_LIMIT", 5),
		},

		Advisor: AdvisorConfig{
			Enabled:     getEnvAsBool("ADVISOR_ENABLED", false),
			URL:         getEnv("ADVISOR_URL", ""),
			WindowCount: getEnvAsInt("ADVISOR_WINDOW_COUNT", 10),
		},

		Database: DatabaseConfig{
			URL:           getEnv("DATABASE_URL", ""),
			MaxConns:      getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:      getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLife:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdle:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
			RetentionDays: getEnvAsInt("DB_RETENTION_DAYS", 14),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants. Misconfiguration is fatal at
// load time; nothing downstream re-checks these.
func (c *Config) validate() error {
	if c.Pipeline.WindowSize < 2 {
		return fmt.Errorf("WINDOW_SIZE must be >= 2, got %d", c.Pipeline.WindowSize)
	}

	if c.Pipeline.Alpha <= 0 {
		return fmt.Errorf("ALPHA must be positive, got %g", c.Pipeline.Alpha)
	}

	if c.Pipeline.ADVFactor <= 0 {
		return fmt.Errorf("ADV_FACTOR must be positive, got %g", c.Pipeline.ADVFactor)
	}

	if c.Pipeline.HistorySize < 1 {
		return fmt.Errorf("HISTORY_SIZE must be >= 1, got %d", c.Pipeline.HistorySize)
	}

	if c.Pipeline.SyntheticTickPeriod <= 0 {
		return fmt.Errorf("SYNTHETIC_TICK_PERIOD must be positive")
	}

	if c.Advisor.Enabled && c.Advisor.URL == "" {
		return fmt.Errorf("ADVISOR_URL is required when ADVISOR_ENABLED=true")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
