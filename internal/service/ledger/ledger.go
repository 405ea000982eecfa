package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/metrics"
	"github.com/vladislavdragonenkov/tickets/internal/service/events"
)

// Option настраивает Ledger.
type Option func(*Ledger)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.TicketMetrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// WithRecorder подключает запись событий в outbox.
func WithRecorder(recorder *events.Recorder) Option {
	return func(l *Ledger) {
		l.events = recorder
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger ведёт заказы и их статусы.
type Ledger struct {
	users   domain.UserDirectory
	orders  domain.OrderRepository
	events  *events.Recorder
	metrics *metrics.TicketMetrics
	logger  *log.Entry
	now     func() time.Time
}

// New создаёт Ledger.
func New(users domain.UserDirectory, orders domain.OrderRepository, opts ...Option) *Ledger {
	l := &Ledger{
		users:  users,
		orders: orders,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.WithField("component", "order-ledger")
	}
	return l
}

// NewPendingOrder собирает заказ в статусе pending с новым идентификатором, не сохраняя его.
func (l *Ledger) NewPendingOrder(userID, concertID string, quantity int) (domain.Order, error) {
	if quantity < 1 {
		return domain.Order{}, fmt.Errorf("%w: order quantity must be positive, got %d", domain.ErrInvalidQuantity, quantity)
	}
	now := l.now()
	return domain.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		ConcertID: concertID,
		Quantity:  quantity,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CreateOrder сохраняет новый pending-заказ. Доступность концерта здесь не проверяется.
func (l *Ledger) CreateOrder(ctx context.Context, userID, concertID string, quantity int) (domain.Order, error) {
	order, err := l.NewPendingOrder(userID, concertID, quantity)
	if err != nil {
		return domain.Order{}, err
	}
	if err := l.orders.Create(ctx, order); err != nil {
		return domain.Order{}, err
	}
	l.Created(ctx, order)
	return order, nil
}

// Created логирует и публикует событие order.created для уже сохранённого заказа.
func (l *Ledger) Created(ctx context.Context, order domain.Order) {
	l.logger.WithFields(log.Fields{
		"order_id":   order.ID,
		"user_id":    order.UserID,
		"concert_id": order.ConcertID,
		"quantity":   order.Quantity,
	}).Info("order created")
	l.events.OrderChanged(ctx, domain.EventOrderCreated, order)
}

// ListOrders возвращает заказы пользователя с данными концертов.
func (l *Ledger) ListOrders(ctx context.Context, username string) ([]domain.OrderLine, error) {
	user, err := l.users.UserByName(ctx, username)
	if err != nil {
		return nil, err
	}
	return l.orders.ListByUser(ctx, user.ID)
}

// Order возвращает заказ по идентификатору.
func (l *Ledger) Order(ctx context.Context, orderID string) (domain.Order, error) {
	return l.orders.Get(ctx, orderID)
}

// OwnedBy сообщает, принадлежит ли заказ пользователю username.
func (l *Ledger) OwnedBy(ctx context.Context, orderID, username string) (bool, error) {
	user, err := l.users.UserByName(ctx, username)
	if err != nil {
		return false, err
	}
	order, err := l.orders.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	return order.UserID == user.ID, nil
}

// Summary возвращает агрегат по всем заказам пользователя.
func (l *Ledger) Summary(ctx context.Context, username string) (domain.OrderSummary, error) {
	user, err := l.users.UserByName(ctx, username)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	lines, err := l.orders.ListByUser(ctx, user.ID)
	if err != nil {
		return domain.OrderSummary{}, err
	}
	return domain.Summarize(user.ID, lines), nil
}

// SetStatus переводит заказ в newStatus. Разрешены только pending→paid и pending→cancelled;
// запись выполняется compare-and-set, поэтому из двух гонящихся вызовов проходит один.
func (l *Ledger) SetStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus) (order domain.Order, err error) {
	defer func() { l.metrics.RecordOrderTransition(newStatus, err) }()

	if !newStatus.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, newStatus)
	}

	current, err := l.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := domain.ValidateTransition(current.Status, newStatus); err != nil {
		return domain.Order{}, err
	}

	order, err = l.orders.UpdateStatus(ctx, orderID, current.Status, newStatus)
	if err != nil {
		return domain.Order{}, err
	}

	l.logger.WithFields(log.Fields{
		"order_id": orderID,
		"from":     current.Status,
		"to":       newStatus,
	}).Info("order status changed")
	l.events.OrderChanged(ctx, eventForStatus(newStatus), order)
	return order, nil
}

// Cancel отменяет pending-заказ.
func (l *Ledger) Cancel(ctx context.Context, orderID string) (domain.Order, error) {
	return l.SetStatus(ctx, orderID, domain.OrderStatusCancelled)
}

func eventForStatus(status domain.OrderStatus) domain.EventType {
	if status == domain.OrderStatusPaid {
		return domain.EventOrderPaid
	}
	return domain.EventOrderCancelled
}
