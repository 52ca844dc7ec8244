package repositories

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"telecare/internal/core/ports"
	"telecare/internal/infrastructure/repositories/memory"
	"telecare/internal/infrastructure/repositories/redis"
)

// RepositoryFactory creates the journal storage backend. When Redis is
// enabled but unreachable it falls back to in-memory storage so a broken
// cache server never blocks a consultation.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *goredis.Client
	logger      *zap.Logger
}

func NewRepositoryFactory(cfg redis.ClientConfig, useRedis bool, logger *zap.Logger) *RepositoryFactory {
	factory := &RepositoryFactory{logger: logger}

	if !useRedis {
		logger.Info("using in-memory call journal")
		return factory
	}

	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory call journal",
			zap.String("address", cfg.Address),
			zap.Error(err))
		return factory
	}

	logger.Info("using redis call journal", zap.String("address", cfg.Address))
	factory.useRedis = true
	factory.redisClient = client
	return factory
}

func (f *RepositoryFactory) CreateCallRecordRepository() ports.CallRecordRepository {
	if f.useRedis {
		return redis.NewRedisCallRecordRepository(f.redisClient)
	}
	return memory.NewMemoryCallRecordRepository()
}

// HealthCheck pings the backing store. The in-memory backend is always
// healthy.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if !f.useRedis {
		return nil
	}
	return f.redisClient.Ping(ctx).Err()
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redis.CloseRedisClient(f.redisClient)
	}
	return nil
}
