package server

import (
	"context"
	"fmt"
	"time"

	"github.com/postcraft/edge/internal/models"
	"github.com/postcraft/edge/internal/services/kv"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// newStore builds the configured KV backend. The redis client is returned so
// the caller can close it and use it for health checks.
func newStore(ctx context.Context, cfg models.KVConfig) (kv.Store, *redis.Client, error) {
	switch cfg.Backend {
	case models.KVBackendMemory, "":
		fiberlog.Info("KV backend: in-process memory (single instance only)")
		return kv.NewMemoryStore(), nil, nil
	case models.KVBackendRedis:
		client, err := createRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return kv.NewRedisStore(client, cfg.Namespace), client, nil
	case models.KVBackendUpstash:
		return kv.NewUpstashStore(kv.UpstashConfig{
			URL:       cfg.UpstashURL,
			Token:     cfg.UpstashToken,
			Namespace: cfg.Namespace,
			Timeout:   time.Duration(cfg.TimeoutMs) * time.Millisecond,
		}), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported kv backend: %q", cfg.Backend)
	}
}

func createRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	fiberlog.Debugf("Redis client configuration: PoolSize=%d, MinIdle=%d, MaxRetries=%d",
		opt.PoolSize, opt.MinIdleConns, opt.MaxRetries)

	return connectWithRetry(ctx, redis.NewClient(opt), time.Second)
}

func connectWithRetry(ctx context.Context, client *redis.Client, baseDelay time.Duration) (*redis.Client, error) {
	const maxAttempts = 3

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt < maxAttempts {
			delay := time.Duration(attempt) * baseDelay
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, fmt.Errorf("redis connection aborted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}
