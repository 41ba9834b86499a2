package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds push delivery configuration loaded from the environment.
type Config struct {
	AppName   string
	LogLevel  string
	LogFormat string
	HTTPPort  string

	RabbitURL       string
	PushQueue       string
	DeadLetterQueue string
	PrefetchCount   int
	WorkerCount     int

	DatabaseURL         string
	RedisURL            string
	TokenSuppressionTTL time.Duration

	FCMProjectID          string
	FCMEndpoint           string
	GoogleCredentialsFile string
	ProviderTimeout       time.Duration
	FatalErrorCodes       []string

	DeliveryMaxAttempts int
	CampaignSchedule    string
	CampaignBatchSize   int
	JWTSecret           string

	ConnectMaxAttempts    int
	ConnectInitialBackoff time.Duration
	ConnectMaxBackoff     time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:   getEnv("APP_NAME", "push_delivery"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		HTTPPort:  getEnv("HTTP_PORT", "8082"),

		RabbitURL:       getEnv("RABBITMQ_URL", ""),
		PushQueue:       getEnv("PUSH_QUEUE", "push.queue"),
		DeadLetterQueue: getEnv("PUSH_DLQ", "failed.queue"),
		PrefetchCount:   getEnvAsInt("PUSH_PREFETCH", 100),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 5),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		TokenSuppressionTTL: getEnvAsDuration("TOKEN_SUPPRESSION_TTL", 24*time.Hour),

		FCMProjectID:          getEnv("FCM_PROJECT_ID", ""),
		FCMEndpoint:           getEnv("FCM_ENDPOINT", ""), // derived from FCM_PROJECT_ID when empty
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		ProviderTimeout:       getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
		FatalErrorCodes:       getEnvAsList("FCM_FATAL_CODES", nil),

		DeliveryMaxAttempts: getEnvAsInt("DELIVERY_MAX_ATTEMPTS", 4),
		CampaignSchedule:    getEnv("CAMPAIGN_SCHEDULE", "@every 1m"),
		CampaignBatchSize:   getEnvAsInt("CAMPAIGN_BATCH_SIZE", 100),
		JWTSecret:           getEnv("JWT_SECRET", ""),

		ConnectMaxAttempts:    getEnvAsInt("CONNECT_MAX_ATTEMPTS", 5),
		ConnectInitialBackoff: getEnvAsDuration("CONNECT_INITIAL_BACKOFF", time.Second),
		ConnectMaxBackoff:     getEnvAsDuration("CONNECT_MAX_BACKOFF", 15*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.RabbitURL == "" {
		missing = append(missing, "RABBITMQ_URL")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.FCMProjectID == "" {
		missing = append(missing, "FCM_PROJECT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, def []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
