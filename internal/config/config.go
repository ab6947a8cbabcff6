package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
// Precedence, lowest first: defaults, environment (LEDGER_*, optionally from
// a .env file), YAML file, command-line flags.
type Config struct {
	// Dispatcher
	QueueDepth int `yaml:"queue_depth"`

	// Logging / metrics
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Postgres
	PostgresDSN   string `yaml:"postgres_dsn"`
	MigrationsDir string `yaml:"migrations_dir"`

	// NATS
	NATSURL           string        `yaml:"nats_url"`
	NATSStream        string        `yaml:"nats_stream"`
	NATSSubject       string        `yaml:"nats_subject"`
	NATSConsumer      string        `yaml:"nats_consumer"`
	NATSOutputStream  string        `yaml:"nats_output_stream"`
	NATSOutputSubject string        `yaml:"nats_output_subject"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
}

// DefaultConfig builds a Config from built-in defaults and LEDGER_* variables.
// Sinks and the metrics server stay off unless configured.
func DefaultConfig() Config {
	return Config{
		QueueDepth:        envIntOrDefault("LEDGER_QUEUE_DEPTH", 50),
		LogLevel:          envOrDefault("LEDGER_LOG_LEVEL", "info"),
		MetricsAddr:       envOrDefault("LEDGER_METRICS_ADDR", ""),
		PostgresDSN:       envOrDefault("LEDGER_POSTGRES_DSN", ""),
		MigrationsDir:     envOrDefault("LEDGER_MIGRATIONS_DIR", "migrations"),
		NATSURL:           envOrDefault("LEDGER_NATS_URL", "nats://localhost:4222"),
		NATSStream:        envOrDefault("LEDGER_NATS_STREAM", "TXLEDGER_EVENTS"),
		NATSSubject:       envOrDefault("LEDGER_NATS_SUBJECT", "txledger.events"),
		NATSConsumer:      envOrDefault("LEDGER_NATS_CONSUMER", "txledger"),
		NATSOutputStream:  envOrDefault("LEDGER_NATS_OUTPUT_STREAM", "TXLEDGER_ACCOUNTS"),
		NATSOutputSubject: envOrDefault("LEDGER_NATS_OUTPUT_SUBJECT", ""),
		IdleTimeout:       envDurationOrDefault("LEDGER_IDLE_TIMEOUT", 0),
	}
}

// Load reads envFile into the process environment when it exists, then
// returns DefaultConfig. Variables already set are not overridden.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return DefaultConfig(), nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current value.
func LoadFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.QueueDepth < 1 {
		return fmt.Errorf("queue depth must be at least 1, got %d", c.QueueDepth)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative, got %s", c.IdleTimeout)
	}
	return nil
}

// InputSubjectFilter is the wildcard subject the input stream and consumer cover.
func (c Config) InputSubjectFilter() string {
	return c.NATSSubject + ".>"
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDurationOrDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
