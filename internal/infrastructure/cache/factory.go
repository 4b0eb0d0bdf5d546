package cache

import (
	"fmt"

	"github.com/retailcore/backend/internal/domain/ledger"
	"github.com/retailcore/backend/internal/domain/shared"
	"github.com/retailcore/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// CacheFactory creates idempotency stores and stock caches based on
// configuration, falling back to in-memory variants when Redis is
// unavailable and the fallback is allowed.
type CacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// CacheFactoryOption is a functional option for configuring the factory
type CacheFactoryOption func(*CacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) CacheFactoryOption {
	return func(f *CacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when
// Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) CacheFactoryOption {
	return func(f *CacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewCacheFactory creates a new factory
func NewCacheFactory(cfg config.RedisConfig, opts ...CacheFactoryOption) *CacheFactory {
	f := &CacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *CacheFactory) redisCfg() RedisConfig {
	return RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}
}

// CreateIdempotencyStore creates an idempotency store, Redis first.
// In-memory stores do not share state across process instances, so the
// fallback can let a duplicate request through in distributed deployments.
func (f *CacheFactory) CreateIdempotencyStore() (shared.IdempotencyStore, error) {
	store, err := NewRedisIdempotencyStore(f.redisCfg())
	if err == nil {
		f.logger.Info("using Redis idempotency store")
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
		"This may let duplicate requests through in distributed deployments.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}

// CreateStockCache creates a stock-on-hand projection cache, Redis first.
// The projection is rebuilt from the ledger on miss, so an in-memory fallback
// only costs extra replays, never correctness.
func (f *CacheFactory) CreateStockCache() (ledger.StockCache, error) {
	cache, err := NewRedisStockCache(f.redisCfg())
	if err == nil {
		f.logger.Info("using Redis stock cache")
		return cache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for stock cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory stock cache",
		zap.Error(err),
	)
	return NewInMemoryStockCache(), nil
}
