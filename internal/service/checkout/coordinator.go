package checkout

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/metrics"
	"github.com/vladislavdragonenkov/tickets/internal/service/availability"
	"github.com/vladislavdragonenkov/tickets/internal/service/events"
	"github.com/vladislavdragonenkov/tickets/internal/service/ledger"
)

// Failure описывает позицию корзины, которая не превратилась в заказ.
type Failure struct {
	ConcertID   string
	ConcertName string
	Reason      string
	Err         error
}

// Result: итог оформления: созданные заказы и отказавшие позиции.
type Result struct {
	CreatedOrderIDs []string
	Failures        []Failure
}

// Option настраивает Coordinator.
type Option func(*Coordinator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.TicketMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithRecorder подключает запись событий в outbox.
func WithRecorder(recorder *events.Recorder) Option {
	return func(c *Coordinator) {
		c.events = recorder
	}
}

// Coordinator превращает позиции корзины в pending-заказы.
// Каждая позиция обрабатывается в своей транзакции: заказ создаётся
// и позиция удаляется вместе, либо не происходит ничего.
type Coordinator struct {
	users   domain.UserDirectory
	cart    domain.CartRepository
	orders  domain.OrderRepository
	guard   *availability.Guard
	ledger  *ledger.Ledger
	events  *events.Recorder
	metrics *metrics.TicketMetrics
	logger  *log.Entry
}

// NewCoordinator собирает координатор оформления заказа.
func NewCoordinator(
	users domain.UserDirectory,
	cart domain.CartRepository,
	orders domain.OrderRepository,
	guard *availability.Guard,
	ledger *ledger.Ledger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		users:  users,
		cart:   cart,
		orders: orders,
		guard:  guard,
		ledger: ledger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "checkout")
	}
	return c
}

// Checkout оформляет все позиции корзины пользователя.
// Пустая корзина — ErrEmptyCart. Ошибки отдельных позиций попадают в Result.Failures,
// такие позиции остаются в корзине.
func (c *Coordinator) Checkout(ctx context.Context, username string) (Result, error) {
	started := time.Now()
	defer c.metrics.ObserveDuration("checkout", started)

	user, err := c.users.UserByName(ctx, username)
	if err != nil {
		return Result{}, err
	}

	items, err := c.cart.List(ctx, user.ID)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, domain.ErrEmptyCart
	}

	result := Result{
		CreatedOrderIDs: make([]string, 0, len(items)),
		Failures:        make([]Failure, 0),
	}
	for _, item := range items {
		orderID, err := c.placeItem(ctx, item)
		if err != nil {
			c.logger.WithError(err).WithFields(log.Fields{
				"username":   username,
				"concert_id": item.ConcertID,
			}).Warn("checkout line failed")
			result.Failures = append(result.Failures, Failure{
				ConcertID:   item.ConcertID,
				ConcertName: item.ConcertName,
				Reason:      err.Error(),
				Err:         err,
			})
			continue
		}
		result.CreatedOrderIDs = append(result.CreatedOrderIDs, orderID)
	}

	c.metrics.RecordCheckout(len(result.CreatedOrderIDs), len(result.Failures))
	c.logger.WithFields(log.Fields{
		"username": username,
		"created":  len(result.CreatedOrderIDs),
		"failed":   len(result.Failures),
	}).Info("checkout completed")
	c.events.Record(ctx, domain.AggregateUser, user.ID, domain.EventCheckoutCompleted, events.CheckoutEvent{
		Username:        username,
		CreatedOrderIDs: result.CreatedOrderIDs,
		FailedCount:     len(result.Failures),
	})
	return result, nil
}

func (c *Coordinator) placeItem(ctx context.Context, item domain.CartItem) (string, error) {
	if err := c.guard.Require(ctx, item.ConcertID); err != nil {
		return "", err
	}

	order, err := c.ledger.NewPendingOrder(item.UserID, item.ConcertID, item.Quantity)
	if err != nil {
		return "", err
	}
	if err := c.orders.PlaceOrder(ctx, item.ID, order); err != nil {
		return "", err
	}

	c.ledger.Created(ctx, order)
	return order.ID, nil
}
