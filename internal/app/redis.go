package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const redisPingTimeout = 2 * time.Second

// initRedis подключается к Redis для rate limiter. Недоступный Redis не
// мешает старту: сервис работает без ограничения частоты запросов.
func initRedis(ctx context.Context, addr string, logger *log.Entry) *redis.Client {
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  redisPingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).WithField("addr", addr).Warn("redis is unavailable, rate limiting disabled")
		_ = client.Close()
		return nil
	}

	logger.WithField("addr", addr).Info("redis connected")
	return client
}

func closeRedis(client *redis.Client, logger *log.Entry) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.WithError(err).Warn("failed to close redis client")
	}
}
