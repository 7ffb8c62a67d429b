package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Environment string
	Port        string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth
	JWTSecret      string
	PipelineAPIKey string

	// Upstream market data
	TushareURL    string
	TushareToken  string
	SinaQuoteURL  string
	QuoteSource   string        // "sina" or "tushare"
	HTTPTimeout   time.Duration
	ProviderRate  float64       // upstream requests per second
	ProviderBurst int

	// Evaluation engine
	EvalWorkers    int
	DebounceWindow time.Duration

	// Scheduler
	SchedulerEnabled bool
	CatalogSyncAt    string // "HH:MM" in market timezone
	EvalInterval     time.Duration
	MarketHoursOnly  bool
	MarketTimezone   string

	// Alert dispatch
	DispatchSink     string // "log" or "telegram"
	TelegramAPIURL   string
	TelegramBotToken string
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Environment: getEnv("ENV", "development"),
		Port:        getEnv("PORT", "8080"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "stockwatch"),
		DBPassword: getEnv("DB_PASSWORD", "stockwatch"),
		DBName:     getEnv("DB_NAME", "stockwatch"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Auth
		JWTSecret:      getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),
		PipelineAPIKey: getEnv("PIPELINE_API_KEY", ""),

		// Upstream market data
		TushareURL:    getEnv("TUSHARE_API_URL", "http://api.tushare.pro"),
		TushareToken:  getEnv("TUSHARE_TOKEN", ""),
		SinaQuoteURL:  getEnv("SINA_QUOTE_URL", "https://hq.sinajs.cn"),
		QuoteSource:   getEnv("QUOTE_SOURCE", "sina"),
		HTTPTimeout:   getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		ProviderRate:  getEnvFloat("PROVIDER_RATE_LIMIT", 5),
		ProviderBurst: getEnvInt("PROVIDER_RATE_BURST", 1),

		// Evaluation engine
		EvalWorkers:    getEnvInt("EVAL_WORKERS", 4),
		DebounceWindow: getEnvDuration("ALERT_DEBOUNCE_WINDOW", time.Hour),

		// Scheduler
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		CatalogSyncAt:    getEnv("CATALOG_SYNC_AT", "17:00"),
		EvalInterval:     getEnvDuration("EVAL_INTERVAL", 5*time.Minute),
		MarketHoursOnly:  getEnvBool("EVAL_MARKET_HOURS_ONLY", true),
		MarketTimezone:   getEnv("MARKET_TIMEZONE", "Asia/Shanghai"),

		// Alert dispatch
		DispatchSink:     getEnv("DISPATCH_SINK", "log"),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
	}

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid %s value '%s', using default %d\n", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("Warning: invalid %s value '%s', using default %g\n", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Printf("Warning: invalid %s value '%s', using default %v\n", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Warning: invalid %s value '%s', using default %s\n", key, value, defaultValue)
	}
	return defaultValue
}
