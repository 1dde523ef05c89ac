package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database      DatabaseConfig
	Otel          OtelConfig
	Relationships RelationshipsConfig
	Discovery     DiscoveryConfig
	Scheduler     SchedulerConfig
	SystemHealth  SystemHealthConfig

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"bizsuite"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"bizsuite"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// RelationshipsConfig tunes the relationship engine.
type RelationshipsConfig struct {
	// How long the relationship type registry serves from memory before reloading.
	TypeCacheTTL time.Duration `env:"RELATIONSHIP_TYPE_CACHE_TTL" envDefault:"5m"`
}

// DiscoveryConfig controls the supplier auto-detection batch.
type DiscoveryConfig struct {
	// Minimum number of matching cost lines before a contact is considered a supplier.
	SupplierMinInteractions int `env:"SUPPLIER_MIN_INTERACTIONS" envDefault:"2"`

	SupplierDetectionEnabled  bool          `env:"SUPPLIER_DETECTION_ENABLED" envDefault:"false"`
	SupplierDetectionInterval time.Duration `env:"SUPPLIER_DETECTION_INTERVAL" envDefault:"24h"`
	// Cron override, "second minute hour dom month dow". Takes precedence over the interval.
	SupplierDetectionSchedule string `env:"SUPPLIER_DETECTION_SCHEDULE" envDefault:""`
}

// SchedulerConfig controls the in-process cron scheduler.
type SchedulerConfig struct {
	Enabled     bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	TaskTimeout time.Duration `env:"SCHEDULER_TASK_TIMEOUT" envDefault:"30m"`
}

// SystemHealthConfig controls host load sampling. Background batches are
// skipped while the host is in the critical zone.
type SystemHealthConfig struct {
	Enabled  bool          `env:"SYSHEALTH_ENABLED" envDefault:"true"`
	Interval time.Duration `env:"SYSHEALTH_INTERVAL" envDefault:"30s"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Discovery.SupplierMinInteractions < 1 {
		return nil, fmt.Errorf("SUPPLIER_MIN_INTERACTIONS must be >= 1, got %d", cfg.Discovery.SupplierMinInteractions)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.Bool("supplier_detection", cfg.Discovery.SupplierDetectionEnabled),
	)

	return cfg, nil
}
