package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr               string
	DatabaseURL        string
	Redis              RedisConfig
	KafkaBrokers       []string
	KafkaAuditTopic    string
	HighValueThreshold float64
}

// RedisConfig controls the optional effective-permission cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SnapshotTTL  time.Duration
}

// DefaultHighValueThreshold is the amount-ceiling limit above which a grant on
// a sensitive action is audited as critical.
const DefaultHighValueThreshold = 1000

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("PERMIT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	threshold := float64(DefaultHighValueThreshold)
	if raw := os.Getenv("HIGH_VALUE_THRESHOLD"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			threshold = parsed
		}
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, broker := range strings.Split(raw, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}
	auditTopic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if auditTopic == "" {
		auditTopic = "permit.audit"
	}

	return Server{
		Addr:        addr,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			SnapshotTTL:  30 * time.Second,
		},
		KafkaBrokers:       brokers,
		KafkaAuditTopic:    auditTopic,
		HighValueThreshold: threshold,
	}
}
