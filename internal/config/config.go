// Package config provides configuration management for the list sync service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Provider ProviderConfig
	Queue    QueueConfig
	Cache    CacheConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ProviderConfig holds remote list provider configuration
type ProviderConfig struct {
	BaseURL           string
	APIKey            string
	RequestTimeout    time.Duration // bound on the facade's synchronous attempt
	RequestsPerSecond float64       // client-side rate limit toward the provider
}

// QueueConfig holds queue processor and retry policy configuration.
// Backoff and retry ceilings are tunables, not derived constants.
type QueueConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	PollInterval      time.Duration
	BatchSize         int
	Workers           int
	StaleAfter        time.Duration
}

// CacheConfig holds list cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "listsync"),
				User:           getEnv("POSTGRES_USER", "listsync"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Provider: ProviderConfig{
			BaseURL:           getEnv("PROVIDER_BASE_URL", "https://api.themoviedb.org/4"),
			APIKey:            getEnv("PROVIDER_API_KEY", ""),
			RequestTimeout:    getEnvAsDuration("PROVIDER_REQUEST_TIMEOUT", 5*time.Second),
			RequestsPerSecond: getEnvAsFloat("PROVIDER_REQUESTS_PER_SECOND", 4),
		},
		Queue: QueueConfig{
			MaxRetries:        getEnvAsInt("QUEUE_MAX_RETRIES", 5),
			BaseDelay:         getEnvAsDuration("QUEUE_BASE_DELAY", 30*time.Second),
			MaxDelay:          getEnvAsDuration("QUEUE_MAX_DELAY", 30*time.Minute),
			BackoffMultiplier: getEnvAsFloat("QUEUE_BACKOFF_MULTIPLIER", 2.0),
			PollInterval:      getEnvAsDuration("QUEUE_POLL_INTERVAL", 15*time.Second),
			BatchSize:         getEnvAsInt("QUEUE_BATCH_SIZE", 50),
			Workers:           getEnvAsInt("QUEUE_WORKERS", 5),
			StaleAfter:        getEnvAsDuration("QUEUE_STALE_AFTER", 5*time.Minute),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
