package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/tickets/internal/messaging/rabbitmq"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса.
// KafkaBrokers хранится строкой через запятую, чтобы Config оставался сравнимым.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	CartMaxQuantity int
	JWTSecret       string

	KafkaBrokers  string
	KafkaTopic    string
	RabbitMQURL   string
	RabbitMQQueue string

	RedisAddr               string
	RateLimitCapacity       int
	RateLimitRefillInterval time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	OutboxRetention       time.Duration
	OutboxCleanupInterval time.Duration
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                ":8080",
		GRPCAddr:                ":50051",
		MetricsAddr:             ":9090",
		StorageDriver:           StorageDriverMemory,
		PostgresAutoMigrate:     true,
		CartMaxQuantity:         domain.DefaultMaxCartQuantity,
		KafkaTopic:              kafka.TopicOrderEvents,
		RabbitMQQueue:           rabbitmq.DefaultQueue,
		RateLimitCapacity:       20,
		RateLimitRefillInterval: time.Second,
		OutboxPollInterval:      time.Second,
		OutboxBatchSize:         100,
		OutboxMaxAttempts:       3,
		OutboxRetryDelay:        50 * time.Millisecond,
		OutboxRetention:         24 * time.Hour,
		OutboxCleanupInterval:   10 * time.Minute,
	}
}

// Validate проверяет согласованность настроек до старта зависимостей.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres dsn is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.StorageDriver)
	}
	if c.CartMaxQuantity <= 0 {
		return fmt.Errorf("cart max quantity must be positive, got %d", c.CartMaxQuantity)
	}
	if c.RateLimitCapacity <= 0 || c.RateLimitRefillInterval <= 0 {
		return fmt.Errorf("rate limit capacity and refill interval must be positive")
	}
	if c.OutboxRetention < 0 {
		return fmt.Errorf("outbox retention must not be negative, got %s", c.OutboxRetention)
	}
	return nil
}

// KafkaBrokerList разбирает KafkaBrokers, пропуская пустые элементы.
func (c Config) KafkaBrokerList() []string {
	return splitBrokers(c.KafkaBrokers)
}

// BrokerKind возвращает выбранный транспорт outbox: kafka, rabbitmq или none.
func (c Config) BrokerKind() string {
	switch {
	case len(c.KafkaBrokerList()) > 0:
		return brokerKafka
	case strings.TrimSpace(c.RabbitMQURL) != "":
		return brokerRabbitMQ
	default:
		return brokerNone
	}
}

func splitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
