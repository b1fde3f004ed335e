package task

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/mediaflow/config"
	"github.com/BaSui01/mediaflow/internal/tlsutil"
)

// Store persists generation tasks. Tasks are never removed automatically.
type Store interface {
	// Create persists a new pending task.
	Create(ctx context.Context, in Input) (*Task, error)

	// Update applies a partial mutation and returns the merged task.
	// Unknown ids yield ErrNotFound; backward moves yield ErrInvalidTransition.
	Update(ctx context.Context, id string, u Update) (*Task, error)

	// Get returns a copy of the task.
	Get(ctx context.Context, id string) (*Task, error)

	// List returns tasks matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*Task, error)

	// Ping checks if the store is healthy.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeFile     StoreType = "file"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeDatabase StoreType = "database"
)

// Backends carries the shared clients a store may be built on.
type Backends struct {
	Redis  config.RedisConfig
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewStore creates a Store based on the configuration.
func NewStore(ctx context.Context, cfg config.TaskStoreConfig, b Backends) (Store, error) {
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch StoreType(cfg.Type) {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(cfg.BaseDir)
	case StoreTypeRedis:
		client := redis.NewClient(redisOptions(b.Redis))
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return NewRedisStore(client, cfg.KeyPrefix, logger), nil
	case StoreTypeDatabase:
		if b.DB == nil {
			return nil, fmt.Errorf("database task store requires a database connection")
		}
		return NewGormStore(ctx, b.DB)
	default:
		return nil, fmt.Errorf("unsupported task store type: %s", cfg.Type)
	}
}

func redisOptions(rc config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
	}
	if rc.TLS {
		opts.TLSConfig = tlsutil.ClientTLSConfig()
	}
	return opts
}
