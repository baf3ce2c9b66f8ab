package core

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"buildcore/internal/infra/events"
	"buildcore/internal/infra/events/kafka"
	"buildcore/internal/infra/persistence/memory"
	"buildcore/internal/infra/persistence/postgres"
	"buildcore/internal/infra/persistence/sqlite"
	"buildcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig carries the backend selection parsed from the environment.
type StorageConfig struct {
	Driver       StorageDriver `env:"BUILDCORE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath   string        `env:"BUILDCORE_SQLITE_PATH" envDefault:"./buildcore.db"`
	PostgresDSN  string        `env:"BUILDCORE_POSTGRES_DSN"`
	KafkaBrokers []string      `env:"BUILDCORE_KAFKA_BROKERS"`
}

// LoadStorageConfig reads the storage configuration from the environment.
func LoadStorageConfig() (StorageConfig, error) {
	var cfg StorageConfig
	if err := env.Parse(&cfg); err != nil {
		return StorageConfig{}, fmt.Errorf("parse storage config: %w", err)
	}
	return cfg, nil
}

// OpenPersistentStore selects a backend from the configuration. Defaults to
// sqlite when the driver is unset.
func OpenPersistentStore(cfg StorageConfig, engine *RulesEngine) (PersistentStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenEventSink selects an event sink from the configuration: a Kafka
// producer when brokers are configured, the logging sink otherwise.
func OpenEventSink(cfg StorageConfig, logger Logger) domain.EventSink {
	if len(cfg.KafkaBrokers) > 0 {
		return kafka.NewSink(cfg.KafkaBrokers)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return events.NewLogSink(logger)
}
