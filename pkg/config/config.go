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

// Config holds all process-level configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// AnalysisConfigPath points at the YAML file with categories, providers and policies
	AnalysisConfigPath string

	// Database (analysis history, optional)
	Database DatabaseConfig

	// Redis (result cache + rate limits, optional)
	Redis RedisConfig

	// External data sources
	AlphaVantage ProviderConfig
	Finnhub      ProviderConfig
	Scraper      ScraperConfig

	// HTTP client defaults for external sources
	HTTPTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring (served at /metrics on the API port)
	MetricsEnabled bool

	// BenchmarkSymbol is the market context symbol used by the market category
	BenchmarkSymbol string

	// Scheduler
	Watchlist       []string
	RefreshSchedule string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	Enabled   bool
	KeyPrefix string // 빈 값이면 키를 그대로 사용
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL     string
	Enabled bool

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ProviderConfig holds settings for a keyed JSON market data API
type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	RequestsPerMin int
}

// ScraperConfig holds settings for the HTML quote page fallback
type ScraperConfig struct {
	BaseURL        string
	PriceSelector  string
	EPSSelector    string
	RequestsPerMin int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		AnalysisConfigPath: getEnv("ANALYSIS_CONFIG", "config/analysis.yaml"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Enabled:         getEnvAsBool("DB_ENABLED", false),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			Enabled:   getEnvAsBool("REDIS_ENABLED", false),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", ""),
		},

		// External data sources
		AlphaVantage: ProviderConfig{
			APIKey:         getEnv("ALPHA_VANTAGE_API_KEY", ""),
			BaseURL:        getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
			RequestsPerMin: getEnvAsInt("ALPHA_VANTAGE_RPM", 5),
		},
		Finnhub: ProviderConfig{
			APIKey:         getEnv("FINNHUB_API_KEY", ""),
			BaseURL:        getEnv("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
			RequestsPerMin: getEnvAsInt("FINNHUB_RPM", 60),
		},
		Scraper: ScraperConfig{
			BaseURL:        getEnv("SCRAPER_BASE_URL", ""),
			PriceSelector:  getEnv("SCRAPER_PRICE_SELECTOR", "[data-field=price]"),
			EPSSelector:    getEnv("SCRAPER_EPS_SELECTOR", "[data-field=eps]"),
			RequestsPerMin: getEnvAsInt("SCRAPER_RPM", 5),
		},

		HTTPTimeout: getEnvAsDuration("HTTP_TIMEOUT", "30s"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),

		BenchmarkSymbol: getEnv("BENCHMARK_SYMBOL", "SPY"),

		// Scheduler
		Watchlist:       getEnvAsList("WATCHLIST", nil),
		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "0 */15 * * * *"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when DB_ENABLED=true")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.AnalysisConfigPath == "" {
		return fmt.Errorf("ANALYSIS_CONFIG must not be empty")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

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

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
