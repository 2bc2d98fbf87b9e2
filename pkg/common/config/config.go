package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresAppName  string
	PostgresLogLevel string

	PostgresMaxOpenConns    int
	PostgresMaxIdleConns    int
	PostgresConnMaxLifetime time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	RedisTimeout  time.Duration

	// Kafka
	KafkaBrokers           []string
	KafkaGroupID           string
	KafkaCountTopic        string
	KafkaReviewStatusTopic string
	KafkaMaxWait           time.Duration
	KafkaHandlerRetries    int
	KafkaRetryBackoff      time.Duration

	// Cohort builder
	CatalogPath       string
	SearchBaseURL     string
	SearchTimeout     time.Duration
	SearchRetries     int
	DebounceWindow    time.Duration
	FunnelConcurrency int
	FunnelCacheTTL    time.Duration
	SessionTTL        time.Duration

	// Cohort review
	ReviewDefaultPageSize int
	ReviewMaxPageSize     int
	ReviewCacheTTL        time.Duration
	ReviewFetchTimeout    time.Duration

	// Gateway specific
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8087"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "synaptica"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "synaptica123"),
		PostgresDB:       getEnv("POSTGRES_DB", "cohorts"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresAppName:  getEnv("POSTGRES_APPLICATION_NAME", "cohort-builder"),
		PostgresLogLevel: getEnv("POSTGRES_LOG_LEVEL", "warn"),

		PostgresMaxOpenConns:    getIntEnv("POSTGRES_MAX_OPEN_CONNS", 20),
		PostgresMaxIdleConns:    getIntEnv("POSTGRES_MAX_IDLE_CONNS", 5),
		PostgresConnMaxLifetime: getDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
		RedisTimeout:  getDuration("REDIS_TIMEOUT", 3*time.Second),

		KafkaBrokers:           getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:           getEnv("KAFKA_GROUP_ID", "cohort-builder"),
		KafkaCountTopic:        getEnv("KAFKA_COUNT_TOPIC", "cohort.group-counts"),
		KafkaReviewStatusTopic: getEnv("KAFKA_REVIEW_STATUS_TOPIC", "cohort.review-status"),
		KafkaMaxWait:           getDuration("KAFKA_MAX_WAIT", 500*time.Millisecond),
		KafkaHandlerRetries:    getIntEnv("KAFKA_HANDLER_RETRIES", 3),
		KafkaRetryBackoff:      getDuration("KAFKA_RETRY_BACKOFF", 200*time.Millisecond),

		CatalogPath:       getEnv("CRITERIA_CATALOG_PATH", ""),
		SearchBaseURL:     getEnv("SEARCH_BASE_URL", "http://localhost:8090"),
		SearchTimeout:     getDuration("SEARCH_TIMEOUT", 60*time.Second),
		SearchRetries:     getIntEnv("SEARCH_RETRIES", 3),
		DebounceWindow:    getDuration("COUNT_DEBOUNCE_WINDOW", 1500*time.Millisecond),
		FunnelConcurrency: getIntEnv("FUNNEL_CONCURRENCY", 2),
		FunnelCacheTTL:    getDuration("FUNNEL_CACHE_TTL", 2*time.Minute),
		SessionTTL:        getDuration("SESSION_TTL", 30*time.Minute),

		ReviewDefaultPageSize: getIntEnv("REVIEW_DEFAULT_PAGE_SIZE", 25),
		ReviewMaxPageSize:     getIntEnv("REVIEW_MAX_PAGE_SIZE", 100),
		ReviewCacheTTL:        getDuration("REVIEW_CACHE_TTL", 2*time.Minute),
		ReviewFetchTimeout:    getDuration("REVIEW_FETCH_TIMEOUT", 30*time.Second),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
