package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server (aggregates API)
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Pipeline
	SaltFile           string
	ManifestFile       string
	RegistryFile       string
	AggregatesDir      string
	SuppressThreshold  int
	SurrogatePrefix    string
	IdentifierRequired bool
	LeakRulesFile      string

	// Database (optional registry archive)
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis (optional suppressed-aggregate cache)
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	AggregateTTL  time.Duration

	// Kafka (optional audit events)
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		SaltFile:           getEnv("SALT_FILE", "hashing_salt.txt"),
		ManifestFile:       getEnv("MANIFEST_FILE", "sources.yaml"),
		RegistryFile:       getEnv("REGISTRY_FILE", "data/processed/master_registry.csv"),
		AggregatesDir:      getEnv("AGGREGATES_DIR", "data/aggregated"),
		SuppressThreshold:  getIntEnv("SUPPRESS_THRESHOLD", 5),
		SurrogatePrefix:    getEnv("SURROGATE_PREFIX", "ICU"),
		IdentifierRequired: getBoolEnv("IDENTIFIER_REQUIRED", true),
		LeakRulesFile:      getEnv("LEAK_RULES_FILE", ""),

		PostgresEnabled:  getBoolEnv("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "registry"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "registry123"),
		PostgresDB:       getEnv("POSTGRES_DB", "icu_registry"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		AggregateTTL:  getDuration("AGGREGATE_CACHE_TTL", 15*time.Minute),

		KafkaEnabled: getBoolEnv("KAFKA_ENABLED", false),
		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "registry-audit-events"),
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

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
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
