package store

import (
	"fmt"

	"github.com/mezonai/devnode/db"
)

// StoreType represents the type of store implementation
type StoreType string

const (
	// LevelDBStoreType uses the LevelDB implementation
	LevelDBStoreType StoreType = "leveldb"

	// MemoryStoreType uses LevelDB over in-memory storage
	MemoryStoreType StoreType = "memory"

	// RocksDBStoreType uses the RocksDB implementation
	RocksDBStoreType StoreType = "rocksdb"

	// RedisStoreType uses the Redis implementation
	RedisStoreType StoreType = "redis"
)

// StoreConfig holds configuration for creating store instances
type StoreConfig struct {
	// Type specifies which store implementation to use
	Type StoreType `json:"type" yaml:"type"`

	// Directory is the database directory path (for file-based databases)
	Directory string `json:"directory" yaml:"directory"`

	RedisAddress string `json:"redis_address" yaml:"redis_address"`
	RedisDB      int    `json:"redis_db" yaml:"redis_db"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	switch sc.Type {
	case "":
		return fmt.Errorf("store type cannot be empty")
	case LevelDBStoreType, RocksDBStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty for %s", sc.Type)
		}
	case RedisStoreType:
		if sc.RedisAddress == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	case MemoryStoreType:
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
	return nil
}

// CreateProvider creates a database provider based on the configuration
func CreateProvider(config *StoreConfig) (db.DatabaseProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch config.Type {
	case LevelDBStoreType:
		return db.NewLevelDBProvider(config.Directory)
	case MemoryStoreType:
		return db.NewMemLevelDBProvider()
	case RocksDBStoreType:
		return db.NewRocksDBProvider(config.Directory)
	case RedisStoreType:
		return db.NewRedisProvider(config.RedisAddress, config.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// CreateBlockStore opens the provider described by config and wraps it in a block store
func CreateBlockStore(config *StoreConfig) (*GenericBlockStore, error) {
	provider, err := CreateProvider(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	bs, err := NewGenericBlockStore(provider)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to create block store: %w", err)
	}
	return bs, nil
}
