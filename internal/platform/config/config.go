// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"certify/internal/registry/models"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Content store backends.
const (
	ContentMemory = "memory"
	ContentRedis  = "redis"
)

// Server captures process level configuration. Defaults suit local
// development; production overrides the secrets.
type Server struct {
	Addr      string `env:"CERTIFY_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AuthorityAddress string `env:"AUTHORITY_ADDRESS"`
	AdmissionMode    string `env:"ADMISSION_MODE" envDefault:"both"`

	LedgerBackend string        `env:"LEDGER_BACKEND" envDefault:"memory"`
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"certify.db"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	TxTimeout     time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`

	ContentStore string `env:"CONTENT_STORE" envDefault:"memory"`
	Redis        RedisConfig
	DocumentKey  string `env:"DOCUMENT_KEY" envDefault:"dev-document-key-change-in-production"`

	JWTSigningKey  string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer      string        `env:"JWT_ISSUER" envDefault:"certify"`
	JWTAudience    string        `env:"JWT_AUDIENCE" envDefault:"certify-api"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaAuditTopic string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"certify.audit"`
	RelayInterval   time.Duration `env:"RELAY_INTERVAL" envDefault:"2s"`
	RelayBatchSize  int           `env:"RELAY_BATCH_SIZE" envDefault:"100"`
}

// RedisConfig configures the shared go-redis client.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// FromEnv parses and validates the configuration.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Server) Validate() error {
	c.LedgerBackend = strings.ToLower(strings.TrimSpace(c.LedgerBackend))
	switch c.LedgerBackend {
	case LedgerMemory, LedgerSQLite:
	case LedgerPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	c.ContentStore = strings.ToLower(strings.TrimSpace(c.ContentStore))
	switch c.ContentStore {
	case ContentMemory:
	case ContentRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis content store")
		}
	default:
		return fmt.Errorf("unknown CONTENT_STORE %q", c.ContentStore)
	}

	if _, err := models.ParseAdmissionMode(c.AdmissionMode); err != nil {
		return fmt.Errorf("ADMISSION_MODE: %w", err)
	}
	if c.DocumentKey == "" {
		return fmt.Errorf("DOCUMENT_KEY must not be empty")
	}
	if c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY must not be empty")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaAuditTopic == "" {
		return fmt.Errorf("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// RelayEnabled reports whether audit events are forwarded to Kafka.
func (c Server) RelayEnabled() bool { return len(c.KafkaBrokers) > 0 }
