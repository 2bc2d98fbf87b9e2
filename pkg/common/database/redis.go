package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/cohort-builder/pkg/common/config"
	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
)

var (
	redisClient *redis.Client
	redisOnce   sync.Once
)

const defaultRedisTimeout = 3 * time.Second

func redisOptions(cfg *config.Config) *redis.Options {
	timeout := cfg.RedisTimeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		ClientName:   cfg.PostgresAppName,
		PoolSize:     cfg.RedisPoolSize,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
}

// GetRedis returns the review page cache client. An unreachable Redis is
// logged but not fatal; page lookups then miss and fall through to Postgres.
func GetRedis(cfg *config.Config) *redis.Client {
	redisOnce.Do(func() {
		opts := redisOptions(cfg)
		redisClient = redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
		defer cancel()

		entry := logger.WithFields(logrus.Fields{
			"addr":      opts.Addr,
			"db":        opts.DB,
			"pool_size": opts.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			entry.WithError(err).Warn("Review page cache unreachable")
			return
		}
		entry.Info("Review page cache ready")
	})

	return redisClient
}

func CloseRedis() error {
	if redisClient != nil {
		return redisClient.Close()
	}
	return nil
}
