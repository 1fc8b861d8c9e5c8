package cache

import (
	"github.com/tripdesk/backend/internal/application/billing"
	"github.com/tripdesk/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StatsCacheFactory creates stats caches based on configuration
type StatsCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// StatsCacheFactoryOption is a functional option for configuring the factory
type StatsCacheFactoryOption func(*StatsCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StatsCacheFactoryOption {
	return func(f *StatsCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory cache
// when Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) StatsCacheFactoryOption {
	return func(f *StatsCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStatsCacheFactory creates a new factory
func NewStatsCacheFactory(cfg config.RedisConfig, opts ...StatsCacheFactoryOption) *StatsCacheFactory {
	f := &StatsCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create builds a stats cache. Redis is attempted first; when it is
// unreachable and fallback is allowed, a process-local cache is returned
// instead so a Redis outage never blocks startup.
func (f *StatsCacheFactory) Create() (billing.StatsCache, error) {
	redisCache, err := NewRedisStatsCache(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis stats cache",
			zap.String("host", f.redisConfig.Host),
			zap.Int("port", f.redisConfig.Port))
		return redisCache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, err
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory stats cache",
		zap.Error(err))
	return NewInMemoryStatsCache(), nil
}
