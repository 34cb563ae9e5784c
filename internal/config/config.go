package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// SQLite database
	DatabasePath string

	// Auth
	JWTSecret    string
	JWTExpiresIn string
	BcryptCost   int

	// Key used to seal portal credentials at rest (hex, 32 bytes)
	CredentialKey string

	// Redis (asynq broker, token revocation, rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// External portal
	PortalBaseURL   string
	PortalLoginPath string
	ScrapeTimeout   time.Duration
	RenderTimeout   time.Duration
	RequestDelay    time.Duration
	MaxListPages    int

	// Scheduler
	SchedulerTick          time.Duration
	DefaultIntervalMinutes int
	MaxConsecutiveFailures int
	BackoffCap             time.Duration
	ProgressTTL            time.Duration
	RunHistoryKeep         int

	// Worker
	WorkerConcurrency int
	EmbeddedWorker    bool

	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		DatabasePath: getEnv("DATABASE_PATH", "./data/fossawork.db"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTExpiresIn:  getEnv("JWT_EXPIRES_IN", "24h"),
		BcryptCost:    getEnvInt("BCRYPT_COST", 12),
		CredentialKey: getEnv("CREDENTIAL_KEY", ""),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		PortalBaseURL:   getEnv("PORTAL_BASE_URL", "https://app.workfossa.com"),
		PortalLoginPath: getEnv("PORTAL_LOGIN_PATH", "/login"),
		ScrapeTimeout:   getEnvDuration("SCRAPE_TIMEOUT", 10*time.Minute),
		RenderTimeout:   getEnvDuration("RENDER_TIMEOUT", 45*time.Second),
		RequestDelay:    getEnvDuration("REQUEST_DELAY", 2*time.Second),
		MaxListPages:    getEnvInt("MAX_LIST_PAGES", 20),

		SchedulerTick:          getEnvDuration("SCHEDULER_TICK", time.Minute),
		DefaultIntervalMinutes: getEnvInt("DEFAULT_INTERVAL_MINUTES", 120),
		MaxConsecutiveFailures: getEnvInt("MAX_CONSECUTIVE_FAILURES", 5),
		BackoffCap:             getEnvDuration("BACKOFF_CAP", 6*time.Hour),
		ProgressTTL:            getEnvDuration("PROGRESS_TTL", 10*time.Minute),
		RunHistoryKeep:         getEnvInt("RUN_HISTORY_KEEP", 50),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		EmbeddedWorker:    getEnvBool("EMBEDDED_WORKER", true),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required - set it in .env file")
	}

	if cfg.CredentialKey == "" {
		return nil, fmt.Errorf("CREDENTIAL_KEY is required - set it in .env file")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
