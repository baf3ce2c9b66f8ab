package core

import (
	"path/filepath"
	"testing"

	"buildcore/internal/infra/events"
	"buildcore/internal/infra/persistence/memory"
	"buildcore/internal/infra/persistence/sqlite"
)

func TestLoadStorageConfigDefaults(t *testing.T) {
	cfg, err := LoadStorageConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Driver != StorageSQLite {
		t.Fatalf("driver = %s, want sqlite default", cfg.Driver)
	}
	if cfg.SQLitePath != "./buildcore.db" {
		t.Fatalf("sqlite path = %s", cfg.SQLitePath)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("brokers = %v, want none", cfg.KafkaBrokers)
	}
}

func TestLoadStorageConfigFromEnvironment(t *testing.T) {
	t.Setenv("BUILDCORE_STORAGE_DRIVER", "postgres")
	t.Setenv("BUILDCORE_POSTGRES_DSN", "postgres://build:core@db/buildcore")
	t.Setenv("BUILDCORE_KAFKA_BROKERS", "broker-1:9092,broker-2:9092")

	cfg, err := LoadStorageConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Driver != StoragePostgres {
		t.Fatalf("driver = %s, want postgres", cfg.Driver)
	}
	if cfg.PostgresDSN != "postgres://build:core@db/buildcore" {
		t.Fatalf("dsn = %s", cfg.PostgresDSN)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "broker-1:9092" {
		t.Fatalf("brokers = %v, want two entries", cfg.KafkaBrokers)
	}
}

func TestOpenPersistentStoreSelection(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := OpenPersistentStore(StorageConfig{Driver: StorageMemory}, nil)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*memory.Store); !ok {
			t.Fatalf("store type = %T, want *memory.Store", store)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.db")
		store, err := OpenPersistentStore(StorageConfig{Driver: StorageSQLite, SQLitePath: path}, nil)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		s, ok := store.(*sqlite.Store)
		if !ok {
			t.Fatalf("store type = %T, want *sqlite.Store", store)
		}
		defer s.Close()
	})

	t.Run("empty driver falls back to sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.db")
		store, err := OpenPersistentStore(StorageConfig{SQLitePath: path}, nil)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		s, ok := store.(*sqlite.Store)
		if !ok {
			t.Fatalf("store type = %T, want *sqlite.Store", store)
		}
		defer s.Close()
	})

	t.Run("unknown driver", func(t *testing.T) {
		if _, err := OpenPersistentStore(StorageConfig{Driver: "etcd"}, nil); err == nil {
			t.Fatal("expected an error for an unknown driver")
		}
	})
}

func TestOpenEventSinkSelection(t *testing.T) {
	sink := OpenEventSink(StorageConfig{}, nil)
	if _, ok := sink.(*events.LogSink); !ok {
		t.Fatalf("sink type = %T, want *events.LogSink fallback", sink)
	}
}
