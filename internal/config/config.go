package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinJWTSecretLength is the shortest JWT_SECRET accepted
const MinJWTSecretLength = 32

// Config holds application configuration
type Config struct {
	DatabaseURL string
	ServerPort  string
	FrontendURL string
	EnableHSTS  bool

	JWTSecret          string
	JWTPreviousSecrets []string
	JWTTTL             time.Duration

	OpenAIKey     string
	AIModel       string
	AIVisionModel string
	AIBaseURL     string

	RedisURL      string
	RateLimit     string
	StatsCacheTTL time.Duration

	RabbitMQURL      string
	RabbitMQPrefetch int
	DLQRetention     time.Duration
	DLQGCInterval    time.Duration

	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	StorageURLTTL    time.Duration

	WorkerDebugMode bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
}

// LoadDotEnv loads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:         getEnvBool("ENABLE_HSTS", false),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTPreviousSecrets: getEnvList("JWT_PREVIOUS_SECRETS"),
		JWTTTL:             getEnvDuration("JWT_TTL", 24*time.Hour),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		AIModel:            getEnv("AI_MODEL", "qwen-plus"),
		AIVisionModel:      getEnv("AI_VISION_MODEL", "qwen-vl-max-latest"),
		AIBaseURL:          getEnv("AI_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		RedisURL:           getEnv("REDIS_URL", ""),
		RateLimit:          getEnv("RATE_LIMIT", "20-S"),
		StatsCacheTTL:      getEnvDuration("STATS_CACHE_TTL", 5*time.Minute),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:   getEnvInt("RABBITMQ_PREFETCH", 1),
		DLQRetention:       getEnvDuration("DLQ_RETENTION", 7*24*time.Hour),
		DLQGCInterval:      getEnvDuration("DLQ_GC_INTERVAL", time.Hour),
		StorageEndpoint:    getEnv("STORAGE_ENDPOINT", ""),
		StorageAccessKey:   getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey:   getEnv("STORAGE_SECRET_KEY", ""),
		StorageBucket:      getEnv("STORAGE_BUCKET", "wte-images"),
		StorageUseSSL:      getEnvBool("STORAGE_USE_SSL", true),
		StorageURLTTL:      getEnvDuration("STORAGE_URL_TTL", time.Hour),
		WorkerDebugMode:    getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:    getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return nil, fmt.Errorf("JWT_SECRET is required and must be at least %d characters", MinJWTSecretLength)
	}

	if cfg.RabbitMQPrefetch < 1 {
		cfg.RabbitMQPrefetch = 1
	}

	return cfg, nil
}

// StorageConfigured reports whether object storage credentials are present
func (c *Config) StorageConfigured() bool {
	return c.StorageEndpoint != "" && c.StorageAccessKey != "" && c.StorageSecretKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blank entries
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
