package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full configuration surface, parsed once at startup.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`

	// CallbackBaseURL is the address the approve/reject links point at,
	// e.g. https://api.example.com/prod/approve.
	CallbackBaseURL string `env:"CALLBACK_BASE_URL,required"`

	// TokenIndexName selects the indexed token lookup when set. Empty means
	// no token index is provisioned and lookups degrade to a full scan.
	TokenIndexName string `env:"TOKEN_INDEX_NAME"`

	// TTL is how long a record may stay PENDING before the sweeper forces
	// AUTO_APPROVED. Default is 5 days.
	TTL time.Duration `env:"TTL_DURATION" envDefault:"120h"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"24h"`
	SweepBudget   time.Duration `env:"SWEEP_BUDGET" envDefault:"5m"`
	SweepPageSize int           `env:"SWEEP_PAGE_SIZE" envDefault:"100"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS,required" envSeparator:","`
	KafkaNotifTopic string   `env:"KAFKA_NOTIF_TOPIC,required"`

	// OTELCollectorEndpoint enables trace export when set.
	OTELCollectorEndpoint string `env:"OTEL_COLLECTOR_ENDPOINT"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.TTL <= 0 {
		return Config{}, fmt.Errorf("TTL_DURATION must be positive, got %s", cfg.TTL)
	}
	if cfg.SweepPageSize <= 0 {
		return Config{}, fmt.Errorf("SWEEP_PAGE_SIZE must be positive, got %d", cfg.SweepPageSize)
	}
	return cfg, nil
}
