package events

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// Recorder кладёт доменные события в outbox отдельной записью после того, как
// изменение состояния уже сохранено. Событие может потеряться, если запись в outbox
// не удалась: ошибка логируется и не прерывает основную операцию.
type Recorder struct {
	repo   domain.OutboxRepository
	logger *log.Entry
	now    func() time.Time
}

// NewRecorder создаёт Recorder. nil repo превращает запись событий в no-op.
func NewRecorder(repo domain.OutboxRepository, logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "event-recorder")
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CartEvent описывает изменение корзины.
type CartEvent struct {
	Username    string `json:"username"`
	UserID      string `json:"user_id"`
	ConcertID   string `json:"concert_id"`
	ConcertName string `json:"concert_name"`
	Quantity    int    `json:"quantity"`
}

// OrderEvent описывает изменение заказа.
type OrderEvent struct {
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	ConcertID     string `json:"concert_id"`
	Quantity      int    `json:"quantity"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method,omitempty"`
	PaymentAmount string `json:"payment_amount,omitempty"`
}

// CheckoutEvent подводит итог оформления корзины.
type CheckoutEvent struct {
	Username        string   `json:"username"`
	CreatedOrderIDs []string `json:"created_order_ids"`
	FailedCount     int      `json:"failed_count"`
}

type envelope struct {
	EventType  domain.EventType `json:"event_type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Data       any              `json:"data"`
}

// Record сериализует событие и сохраняет его в outbox.
func (r *Recorder) Record(ctx context.Context, aggregateType, aggregateID string, eventType domain.EventType, data any) {
	if r == nil || r.repo == nil {
		return
	}

	fields := log.Fields{
		"aggregate_type": aggregateType,
		"aggregate_id":   aggregateID,
		"event_type":     eventType,
	}

	payload, err := json.Marshal(envelope{EventType: eventType, OccurredAt: r.now(), Data: data})
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Error("failed to marshal outbox event")
		return
	}

	if _, err := r.repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       payload,
	}); err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("failed to enqueue outbox event")
	}
}

// OrderChanged: сокращение для событий заказа.
func (r *Recorder) OrderChanged(ctx context.Context, eventType domain.EventType, order domain.Order) {
	event := OrderEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		ConcertID:     order.ConcertID,
		Quantity:      order.Quantity,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
	}
	if order.PaymentAmount.Valid {
		event.PaymentAmount = order.PaymentAmount.Decimal.StringFixed(2)
	}
	r.Record(ctx, domain.AggregateOrder, order.ID, eventType, event)
}
