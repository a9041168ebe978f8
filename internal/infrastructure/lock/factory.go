package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/pnv/catalog-sync/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Locker is implemented by MemoryLock and RedisLock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// New returns a Redis lock when Redis is enabled and reachable. Otherwise,
// and when allowFallback is set, it falls back to an in-process lock.
func New(ctx context.Context, cfg config.RedisConfig, allowFallback bool, logger *zap.Logger) (Locker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("Redis disabled, using in-process run lock")
		return NewMemoryLock(), nil
	}

	l, err := NewRedisLock(ctx, RedisConfig{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB})
	if err == nil {
		logger.Info("Using Redis run lock", zap.String("addr", cfg.Addr()))
		return l, nil
	}
	if !allowFallback {
		return nil, fmt.Errorf("redis required for the run lock but unavailable: %w", err)
	}
	logger.Warn("Redis unavailable, falling back to in-process run lock. "+
		"Runs on other instances are not excluded.",
		zap.Error(err),
	)
	return NewMemoryLock(), nil
}
