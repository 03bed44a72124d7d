package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	LogLevel    string
	LogFormat   string
	Backend     BackendConfig
	Redis       RedisConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Eligibility EligibilityConfig
	Validation  ValidationConfig
	Anomaly     AnomalyConfig
}

// BackendConfig holds the utility REST backend settings
type BackendConfig struct {
	BaseURL string
	// Timeout of zero leaves the transport default in place
	Timeout time.Duration
}

// RedisConfig holds the local session cache settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// DatabaseConfig holds database connection settings; an empty URL disables the journal
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings; an empty URL disables events
type RabbitMQConfig struct {
	URL                 string
	EventsExchange      string
	SubmittedRoutingKey string
	ReviewQueue         string
	ReviewRoutingKey    string
	DLQQueue            string
	PrefetchCount       int
}

// EligibilityConfig holds eligibility evaluation settings
type EligibilityConfig struct {
	Timezone string
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	MaxIndex float64
}

// AnomalyConfig holds consumption spike warning thresholds
type AnomalyConfig struct {
	SpikeThreshold            float64
	MinDataPointsForDetection int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "water-meter-agent"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "json")),
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(getEnv("BACKEND_BASE_URL", ""), "/"),
			Timeout: getEnvAsDuration("BACKEND_TIMEOUT", 0),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "water-meter-agent:"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                 getEnv("RABBITMQ_URL", ""),
			EventsExchange:      getEnv("RABBITMQ_EVENTS_EXCHANGE", "water-metering.readings.exchange"),
			SubmittedRoutingKey: getEnv("RABBITMQ_SUBMITTED_ROUTING_KEY", "meter.reading.submitted"),
			ReviewQueue:         getEnv("RABBITMQ_REVIEW_QUEUE", "water-metering.readings.reviewed.queue"),
			ReviewRoutingKey:    getEnv("RABBITMQ_REVIEW_ROUTING_KEY", "meter.reading.reviewed"),
			DLQQueue:            getEnv("RABBITMQ_DLQ_QUEUE", "water-metering.readings.reviewed.dlq"),
			PrefetchCount:       getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Eligibility: EligibilityConfig{
			Timezone: getEnv("ELIGIBILITY_TIMEZONE", "Local"),
		},
		Validation: ValidationConfig{
			MaxIndex: getEnvAsFloat("VALIDATION_MAX_INDEX", 99999999),
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold:            getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", 3.0),
			MinDataPointsForDetection: getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 3),
		},
	}

	// Validate required fields
	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL is required but not set in environment variables")
	}
	if _, err := cfg.Eligibility.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Location resolves the configured timezone used for calendar-month checks
func (c EligibilityConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid ELIGIBILITY_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
