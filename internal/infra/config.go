package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	BrokerBackend    string // "memory" or "redis"
	ResumeSecret     string
	ResumeBaseURL    string
	ResumeTokenTTL   time.Duration
	AbandonAfter     time.Duration
	GenerationCost   int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	ShutdownTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		BrokerBackend:    getEnv("BROKER_BACKEND", "memory"),
		ResumeSecret:     os.Getenv("RESUME_TOKEN_SECRET"),
		ResumeBaseURL:    getEnv("RESUME_BASE_URL", "http://localhost:3000/wizard/resume"),
		ResumeTokenTTL:   time.Hour * time.Duration(getEnvInt("RESUME_TOKEN_TTL_HOURS", 168)),
		AbandonAfter:     time.Hour * time.Duration(getEnvInt("ABANDON_AFTER_HOURS", 24)),
		GenerationCost:   getEnvInt("GENERATION_CREDIT_COST", 1),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		ShutdownTimeout:  time.Second * time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.ResumeSecret == "" {
		return nil, fmt.Errorf("RESUME_TOKEN_SECRET is required")
	}

	switch cfg.BrokerBackend {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("BROKER_BACKEND must be memory or redis, got %q", cfg.BrokerBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
