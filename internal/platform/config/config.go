// Package config builds runtime configuration from the environment so
// wiring code stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the privacy core reads from the environment.
type Config struct {
	// DatabaseURL is the primary record store.
	DatabaseURL string
	// EventLogDatabaseURL points at the event-log database. The log lives
	// apart from the records so restoring a record backup never restores
	// (and thereby truncates) the log.
	EventLogDatabaseURL string

	// CanAnonymiseDatabase gates database-wide anonymisation. Off unless
	// the environment opts in explicitly.
	CanAnonymiseDatabase bool

	// BulkParallelism bounds concurrent replacement computation in bulk
	// anonymisation runs.
	BulkParallelism int

	Redis RedisConfig
	Kafka KafkaConfig
}

// RedisConfig configures the optional Redis marker store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional event sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv reads the VEIL_* environment variables, applying development
// defaults where safe. Destructive capabilities never default on.
func FromEnv() Config {
	cfg := Config{
		DatabaseURL:          os.Getenv("VEIL_DATABASE_URL"),
		EventLogDatabaseURL:  os.Getenv("VEIL_EVENTLOG_DATABASE_URL"),
		CanAnonymiseDatabase: os.Getenv("VEIL_CAN_ANONYMISE_DATABASE") == "true",
		BulkParallelism:      intFromEnv("VEIL_BULK_PARALLELISM", 8),
		Redis: RedisConfig{
			URL:          os.Getenv("VEIL_REDIS_URL"),
			PoolSize:     intFromEnv("VEIL_REDIS_POOL_SIZE", 10),
			MinIdleConns: intFromEnv("VEIL_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: os.Getenv("VEIL_KAFKA_TOPIC"),
		},
	}

	if brokers := os.Getenv("VEIL_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "privacy-events"
	}
	return cfg
}

func intFromEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
