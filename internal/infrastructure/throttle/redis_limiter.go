// Package throttle provides the distributed rate-limiter backend. The
// default in-process limiter lives in the domain service layer; this one
// is selected by config when several instances share one user base.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
)

const (
	keyPrefix      = "daredevil:ratelimit:"
	redisCallLimit = 500 * time.Millisecond
)

// RedisRateLimiter enforces the per-user minimum interval across
// instances with a single SET NX PX per admission: the key exists for
// exactly the interval, so its presence means "too soon".
type RedisRateLimiter struct {
	client      *redis.Client
	minInterval time.Duration
	logger      *zap.Logger
}

var _ service.RateLimiter = (*RedisRateLimiter)(nil)

// Config holds redis connection settings for the limiter.
type Config struct {
	Addr        string
	Password    string
	DB          int
	MinInterval time.Duration
}

// NewRedisRateLimiter connects to redis and verifies the connection.
func NewRedisRateLimiter(cfg Config, logger *zap.Logger) (*RedisRateLimiter, error) {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = service.DefaultMinInterval
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisRateLimiter{
		client:      client,
		minInterval: cfg.MinInterval,
		logger:      logger.With(zap.String("component", "redis-rate-limiter")),
	}, nil
}

// Admit implements service.RateLimiter. Redis owns the clock via key TTL,
// so the caller-supplied timestamp is not consulted. On redis errors the
// limiter fails open and logs.
func (l *RedisRateLimiter) Admit(userKey int64, _ time.Time) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisCallLimit)
	defer cancel()

	key := fmt.Sprintf("%s%d", keyPrefix, userKey)
	ok, err := l.client.SetNX(ctx, key, 1, l.minInterval).Result()
	if err != nil {
		l.logger.Warn("Rate-limit check failed, admitting",
			zap.Int64("user_key", userKey),
			zap.Error(err))
		return true
	}
	return ok
}

// Close releases the redis connection.
func (l *RedisRateLimiter) Close() error {
	return l.client.Close()
}
