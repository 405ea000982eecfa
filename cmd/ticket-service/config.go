package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/tickets/internal/app"
)

const (
	envHTTPAddr                = "TICKETS_HTTP_ADDR"
	envGRPCAddr                = "TICKETS_GRPC_ADDR"
	envMetricsAddr             = "TICKETS_METRICS_ADDR"
	envStorageDriver           = "TICKETS_STORAGE_DRIVER"
	envPostgresDSN             = "TICKETS_POSTGRES_DSN"
	envPostgresAutoMigrate     = "TICKETS_POSTGRES_AUTO_MIGRATE"
	envCartMaxQuantity         = "TICKETS_CART_MAX_QUANTITY"
	envJWTSecret               = "TICKETS_JWT_SECRET"
	envKafkaBrokers            = "TICKETS_KAFKA_BROKERS"
	envKafkaTopic              = "TICKETS_KAFKA_TOPIC"
	envRabbitMQURL             = "TICKETS_RABBITMQ_URL"
	envRabbitMQQueue           = "TICKETS_RABBITMQ_QUEUE"
	envRedisAddr               = "TICKETS_REDIS_ADDR"
	envRateLimitCapacity       = "TICKETS_RATE_LIMIT_CAPACITY"
	envRateLimitRefillInterval = "TICKETS_RATE_LIMIT_REFILL_INTERVAL"
	envOutboxPollInterval      = "TICKETS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize         = "TICKETS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts       = "TICKETS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay        = "TICKETS_OUTBOX_RETRY_DELAY"
	envOutboxRetention         = "TICKETS_OUTBOX_RETENTION"
	envOutboxCleanupInterval   = "TICKETS_OUTBOX_CLEANUP_INTERVAL"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не валят старт: остаётся значение по умолчанию, а в warnings
// попадает описание проблемы.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	stringVars := []struct {
		key    string
		target *string
	}{
		{envHTTPAddr, &cfg.HTTPAddr},
		{envGRPCAddr, &cfg.GRPCAddr},
		{envMetricsAddr, &cfg.MetricsAddr},
		{envPostgresDSN, &cfg.PostgresDSN},
		{envJWTSecret, &cfg.JWTSecret},
		{envKafkaBrokers, &cfg.KafkaBrokers},
		{envKafkaTopic, &cfg.KafkaTopic},
		{envRabbitMQURL, &cfg.RabbitMQURL},
		{envRabbitMQQueue, &cfg.RabbitMQQueue},
		{envRedisAddr, &cfg.RedisAddr},
	}
	for _, v := range stringVars {
		if raw, ok := lookup(v.key); ok && strings.TrimSpace(raw) != "" {
			*v.target = strings.TrimSpace(raw)
		}
	}

	if raw, ok := lookup(envStorageDriver); ok && strings.TrimSpace(raw) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(raw))
	}

	if raw, ok := lookup(envPostgresAutoMigrate); ok {
		if value, err := parseBool(raw); err != nil {
			warn(envPostgresAutoMigrate, raw, err)
		} else {
			cfg.PostgresAutoMigrate = value
		}
	}

	positive := func(v int) bool { return v > 0 }
	intVars := []struct {
		key    string
		target *int
	}{
		{envCartMaxQuantity, &cfg.CartMaxQuantity},
		{envRateLimitCapacity, &cfg.RateLimitCapacity},
		{envOutboxBatchSize, &cfg.OutboxBatchSize},
		{envOutboxMaxAttempts, &cfg.OutboxMaxAttempts},
	}
	for _, v := range intVars {
		raw, ok := lookup(v.key)
		if !ok {
			continue
		}
		value, err := parseInt(raw, positive, "must be > 0")
		if err != nil {
			warn(v.key, raw, err)
			continue
		}
		*v.target = value
	}

	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }
	durationVars := []struct {
		key     string
		target  *time.Duration
		valid   func(time.Duration) bool
		message string
	}{
		{envRateLimitRefillInterval, &cfg.RateLimitRefillInterval, positiveDuration, "must be > 0"},
		{envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0"},
		{envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0"},
		{envOutboxRetention, &cfg.OutboxRetention, nonNegativeDuration, "must be >= 0"},
		{envOutboxCleanupInterval, &cfg.OutboxCleanupInterval, positiveDuration, "must be > 0"},
	}
	for _, v := range durationVars {
		raw, ok := lookup(v.key)
		if !ok {
			continue
		}
		value, err := parseDuration(raw, v.valid, v.message)
		if err != nil {
			warn(v.key, raw, err)
			continue
		}
		*v.target = value
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, message string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, fmt.Errorf("%d %s", value, message)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, message string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, fmt.Errorf("%s %s", value, message)
	}
	return value, nil
}
