package repositories

import (
	"context"
	"database/sql"

	"github.com/dejely/manobela/internal/core/ports"
	"github.com/dejely/manobela/internal/infrastructure/repositories/memory"
	redisrepo "github.com/dejely/manobela/internal/infrastructure/repositories/redis"
	"github.com/dejely/manobela/internal/infrastructure/repositories/sqlite"
	"github.com/dejely/manobela/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories for the configured storage backend
type RepositoryFactory struct {
	backend     string
	redisClient *redis.Client
	sqliteDB    *sql.DB
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory. An unreachable
// Redis or unopenable SQLite file falls back to memory repositories so a
// broken store never blocks monitoring.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		backend: cfg.Storage.Backend,
		logger:  logger,
	}

	switch cfg.Storage.Backend {
	case config.StorageBackendRedis:
		client, err := redisrepo.NewRedisClient(
			cfg.Storage.Redis.Address,
			cfg.Storage.Redis.Password,
			cfg.Storage.Redis.DB,
			cfg.Storage.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.backend = config.StorageBackendMemory
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}

	case config.StorageBackendSQLite:
		db, err := sqlite.NewStore(cfg.Storage.SQLite.Path, logger)
		if err != nil {
			logger.Warnw("failed to open SQLite store, falling back to memory repositories",
				"error", err,
			)
			factory.backend = config.StorageBackendMemory
		} else {
			factory.sqliteDB = db
			logger.Info("using SQLite repositories")
		}
	}

	if factory.backend == config.StorageBackendMemory {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateSessionRepository creates a session repository for the active backend
func (f *RepositoryFactory) CreateSessionRepository() ports.SessionRepository {
	switch f.backend {
	case config.StorageBackendRedis:
		return redisrepo.NewRedisSessionRepository(f.redisClient)
	case config.StorageBackendSQLite:
		return sqlite.NewSQLiteSessionRepository(f.sqliteDB)
	default:
		return memory.NewMemorySessionRepository()
	}
}

// CreateMetricRepository creates a metric repository for the active backend
func (f *RepositoryFactory) CreateMetricRepository() ports.MetricRepository {
	switch f.backend {
	case config.StorageBackendRedis:
		return redisrepo.NewRedisMetricRepository(f.redisClient)
	case config.StorageBackendSQLite:
		return sqlite.NewSQLiteMetricRepository(f.sqliteDB)
	default:
		return memory.NewMemoryMetricRepository()
	}
}

// Close closes the backing store if one is open
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	if f.sqliteDB != nil {
		return f.sqliteDB.Close()
	}
	return nil
}

// HealthCheck checks the backing store connection
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	if f.sqliteDB != nil {
		return f.sqliteDB.PingContext(ctx)
	}
	return nil
}
