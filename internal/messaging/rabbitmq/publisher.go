// Package rabbitmq публикует outbox-сообщения в очередь RabbitMQ.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/messaging"
)

// DefaultQueue: очередь событий заказов по умолчанию.
const DefaultQueue = "tickets.order.events"

// Channel: подмножество *amqp.Channel, которое нужно паблишеру.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher отправляет конверты в durable-очередь через default exchange.
type Publisher struct {
	conn    *amqp.Connection
	channel Channel
	queue   string
	logger  *log.Entry
}

// Dial подключается к брокеру, открывает канал и объявляет очередь.
func Dial(url, queue string, logger *log.Entry) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	publisher, err := NewPublisher(ch, queue, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	publisher.conn = conn
	return publisher, nil
}

// NewPublisher оборачивает готовый канал. Очередь объявляется сразу, объявление идемпотентно.
func NewPublisher(ch Channel, queue string, logger *log.Entry) (*Publisher, error) {
	if ch == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = log.WithField("component", "rabbitmq-publisher")
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("rabbitmq queue declare %s: %w", queue, err)
	}
	return &Publisher{channel: ch, queue: queue, logger: logger}, nil
}

// Queue возвращает имя очереди назначения.
func (p *Publisher) Queue() string {
	return p.queue
}

func (p *Publisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.channel == nil {
		return fmt.Errorf("rabbitmq publisher is not initialized")
	}

	body, err := messaging.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.EventType,
		Timestamp:    time.Now().UTC(),
		Headers: amqp.Table{
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
		},
		Body: body,
	}

	if err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"queue":      p.queue,
			"event_id":   event.ID,
			"event_type": event.EventType,
		}).Error("failed to publish message to rabbitmq")
		return fmt.Errorf("rabbitmq publish: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"queue":      p.queue,
		"event_id":   event.ID,
		"event_type": event.EventType,
	}).Debug("message published to rabbitmq")
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return firstErr
}

var _ domain.OutboxPublisher = (*Publisher)(nil)

// Healthy сообщает об ошибке, если соединение с брокером закрыто.
func (p *Publisher) Healthy() error {
	if p == nil || p.channel == nil {
		return fmt.Errorf("rabbitmq publisher is not initialized")
	}
	if p.conn != nil && p.conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}
