package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/metrics"
	"github.com/vladislavdragonenkov/tickets/internal/service/events"
)

// Option настраивает Processor.
type Option func(*Processor)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.TicketMetrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithRecorder подключает запись событий в outbox.
func WithRecorder(recorder *events.Recorder) Option {
	return func(p *Processor) {
		p.events = recorder
	}
}

// Processor принимает оплату отдельного заказа или всех pending-заказов пользователя.
type Processor struct {
	users    domain.UserDirectory
	concerts domain.ConcertCatalog
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	events   *events.Recorder
	metrics  *metrics.TicketMetrics
	logger   *log.Entry
	now      func() time.Time
}

// NewProcessor создаёт Processor.
func NewProcessor(
	users domain.UserDirectory,
	concerts domain.ConcertCatalog,
	orders domain.OrderRepository,
	payments domain.PaymentRepository,
	opts ...Option,
) *Processor {
	p := &Processor{
		users:    users,
		concerts: concerts,
		orders:   orders,
		payments: payments,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.WithField("component", "payment-processor")
	}
	return p
}

// PayOrder оплачивает один заказ. Заказ не в pending — ErrInvalidTransition,
// сумма меньше стоимости — ErrInvalidAmount.
func (p *Processor) PayOrder(ctx context.Context, orderID string, method domain.PaymentMethod, amount decimal.Decimal) (receipt domain.Receipt, err error) {
	started := time.Now()
	defer func() {
		p.metrics.RecordPayment(method, amount, err)
		p.metrics.ObserveDuration("pay_order", started)
	}()

	method, err = domain.ParsePaymentMethod(string(method))
	if err != nil {
		return domain.Receipt{}, err
	}

	order, err := p.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if err := domain.ValidateTransition(order.Status, domain.OrderStatusPaid); err != nil {
		return domain.Receipt{}, err
	}

	concert, err := p.concerts.ConcertByID(ctx, order.ConcertID)
	if err != nil {
		return domain.Receipt{}, err
	}
	line := domain.OrderLine{Order: order, ConcertName: concert.Name, ConcertPrice: concert.Price, ConcertDate: concert.Date}

	return p.settle(ctx, order.UserID, []domain.OrderLine{line}, method, amount)
}

// PayUser оплачивает все pending-заказы пользователя одной суммой.
// Нет pending-заказов — ErrNoPendingOrders.
func (p *Processor) PayUser(ctx context.Context, username string, method domain.PaymentMethod, amount decimal.Decimal) (receipt domain.Receipt, err error) {
	started := time.Now()
	defer func() {
		p.metrics.RecordPayment(method, amount, err)
		p.metrics.ObserveDuration("pay_user", started)
	}()

	method, err = domain.ParsePaymentMethod(string(method))
	if err != nil {
		return domain.Receipt{}, err
	}

	user, err := p.users.UserByName(ctx, username)
	if err != nil {
		return domain.Receipt{}, err
	}
	lines, err := p.orders.ListByUser(ctx, user.ID)
	if err != nil {
		return domain.Receipt{}, err
	}

	pending := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		if line.Status == domain.OrderStatusPending {
			pending = append(pending, line)
		}
	}
	if len(pending) == 0 {
		return domain.Receipt{}, fmt.Errorf("%w: user %s", domain.ErrNoPendingOrders, username)
	}

	return p.settle(ctx, user.ID, pending, method, amount)
}

// ListPayments возвращает последние попытки оплаты для администратора.
func (p *Processor) ListPayments(ctx context.Context, limit int) ([]domain.PaymentAttempt, error) {
	return p.payments.List(ctx, limit)
}

func (p *Processor) settle(ctx context.Context, userID string, lines []domain.OrderLine, method domain.PaymentMethod, amount decimal.Decimal) (domain.Receipt, error) {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total())
	}
	if err := domain.ValidateAmount(amount, total); err != nil {
		return domain.Receipt{}, err
	}

	now := p.now()
	shares := domain.AllocatePayment(amount, lines)
	attempts := make([]domain.PaymentAttempt, len(lines))
	orderIDs := make([]string, len(lines))
	for i, line := range lines {
		orderIDs[i] = line.ID
		attempts[i] = domain.PaymentAttempt{
			OrderID:   line.ID,
			UserID:    userID,
			Method:    method,
			Amount:    shares[i],
			Status:    domain.PaymentStatusCompleted,
			CreatedAt: now,
		}
	}

	if err := p.payments.Settle(ctx, attempts); err != nil {
		return domain.Receipt{}, err
	}

	for i, line := range lines {
		paid := line.Order
		paid.Status = domain.OrderStatusPaid
		paid.PaymentMethod = method
		paid.PaymentAmount = decimal.NewNullDecimal(shares[i])
		paid.UpdatedAt = now
		p.events.OrderChanged(ctx, domain.EventOrderPaid, paid)
	}

	p.logger.WithFields(log.Fields{
		"user_id": userID,
		"orders":  len(orderIDs),
		"method":  method,
		"amount":  amount.String(),
		"total":   total.String(),
	}).Info("payment accepted")

	return domain.Receipt{
		OrderIDs: orderIDs,
		Method:   method,
		Amount:   amount,
		Total:    total,
		PaidAt:   now,
	}, nil
}
