// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config captures everything the trust pipeline needs at startup. Values are
// read from SKILLPASS_* environment variables.
type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	Redis RedisConfig `envconfig:"REDIS"`

	Kafka KafkaConfig `envconfig:"KAFKA"`

	Registry  CollaboratorConfig `envconfig:"REGISTRY"`
	Document  CollaboratorConfig `envconfig:"DOCUMENT"`
	Liveness  CollaboratorConfig `envconfig:"LIVENESS"`
	HSM       CollaboratorConfig `envconfig:"HSM"`
	SignerKey string             `envconfig:"SIGNER_KEY"` // hex ed25519 seed for the local dev signer

	// RegistryRequired hard-fails verification when the civil registry is
	// unreachable instead of degrading to format-only validation.
	RegistryRequired bool `envconfig:"REGISTRY_REQUIRED" default:"false"`

	// LivenessThreshold is the minimum acceptable liveness score.
	LivenessThreshold float64 `envconfig:"LIVENESS_THRESHOLD" default:"0.85"`

	// CredentialBaseURL prefixes every issued credential's resolvable URI.
	CredentialBaseURL string `envconfig:"CREDENTIAL_BASE_URL" default:"https://credentials.skillpass.id"`

	JWTSigningKey string `envconfig:"JWT_SIGNING_KEY"`

	RegistryCacheTTL time.Duration `envconfig:"REGISTRY_CACHE_TTL" default:"5m"`
}

// RedisConfig mirrors the platform redis client options. An empty URL disables
// the registry cache.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig configures the audit outbox relay. Empty brokers disable the relay.
type KafkaConfig struct {
	Brokers []string      `envconfig:"BROKERS"`
	Topic   string        `envconfig:"TOPIC" default:"skillpass.audit"`
	Poll    time.Duration `envconfig:"POLL" default:"2s"`
	Batch   int           `envconfig:"BATCH" default:"100"`
}

// CollaboratorConfig describes one external service boundary. An empty URL
// selects the deterministic in-process implementation (dev and tests).
type CollaboratorConfig struct {
	URL     string        `envconfig:"URL"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("skillpass", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
