package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/tickets/internal/health"
	"github.com/vladislavdragonenkov/tickets/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/tickets/internal/messaging/rabbitmq"
)

const (
	brokerKafka    = "kafka"
	brokerRabbitMQ = "rabbitmq"
	brokerNone     = "none"
)

// broker: транспорт, в который outbox worker публикует события.
type broker struct {
	kind      string
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	checker   healthcheck.Checker
	closeFn   func() error
}

// initBroker подключает транспорт из конфигурации. Без настроенного брокера
// возвращает nil: события не пишутся в outbox.
func initBroker(cfg Config, logger *log.Entry) (*broker, error) {
	switch cfg.BrokerKind() {
	case brokerKafka:
		producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			return nil, err
		}
		return &broker{
			kind:      brokerKafka,
			publisher: kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			dlq:       kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
			closeFn:   producer.Close,
		}, nil
	case brokerRabbitMQ:
		publisher, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.RabbitMQQueue, logger.WithField("broker", brokerRabbitMQ))
		if err != nil {
			return nil, err
		}
		logger.WithField("queue", publisher.Queue()).Info("rabbitmq publisher initialized")
		return &broker{
			kind:      brokerRabbitMQ,
			publisher: publisher,
			checker: healthcheck.NewOptionalChecker("rabbitmq", func(context.Context) error {
				return publisher.Healthy()
			}),
			closeFn: publisher.Close,
		}, nil
	default:
		logger.Info("message broker is not configured, domain events are disabled")
		return nil, nil
	}
}

// initKafkaProducer создаёт producer по списку брокеров через запятую.
// Пустой список означает, что Kafka не используется.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	list := splitBrokers(brokers)
	if len(list) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(list)
	if err != nil {
		logger.WithError(err).Warn("failed to initialize kafka producer")
		return nil, err
	}
	logger.WithField("brokers", list).Info("kafka producer initialized")
	return producer, nil
}

func closeBroker(b *broker, logger *log.Entry) {
	if b == nil || b.closeFn == nil {
		return
	}
	if err := b.closeFn(); err != nil {
		logger.WithError(err).WithField("broker", b.kind).Warn("failed to close broker")
		return
	}
	logger.WithField("broker", b.kind).Info("broker closed")
}
