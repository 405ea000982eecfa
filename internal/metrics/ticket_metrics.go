package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// TicketMetrics содержит метрики корзины, заказов и оплат.
// Методы безопасны для nil-получателя, поэтому сервисы можно собирать без метрик.
type TicketMetrics struct {
	cartOperations    *prometheus.CounterVec
	checkoutLines     *prometheus.CounterVec
	checkouts         prometheus.Counter
	orderTransitions  *prometheus.CounterVec
	payments          *prometheus.CounterVec
	paidAmount        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewTicketMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewTicketMetrics() *TicketMetrics {
	return NewTicketMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTicketMetricsWithRegisterer регистрирует метрики в указанном реестре.
func NewTicketMetricsWithRegisterer(registerer prometheus.Registerer) *TicketMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &TicketMetrics{
		cartOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "tickets_cart_operations_total",
			Help: "Cart operations grouped by operation and result kind",
		}, []string{"operation", "result"}),
		checkoutLines: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "tickets_checkout_lines_total",
			Help: "Cart entries processed by checkout grouped by outcome",
		}, []string{"outcome"}),
		checkouts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "tickets_checkouts_total",
			Help: "Total number of checkout calls that reached the cart",
		}),
		orderTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "tickets_order_transitions_total",
			Help: "Order status transitions grouped by target status and result kind",
		}, []string{"to", "result"}),
		payments: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "tickets_payments_total",
			Help: "Payment requests grouped by method and result kind",
		}, []string{"method", "result"}),
		paidAmount: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "tickets_paid_amount_total",
			Help: "Sum of accepted payment amounts grouped by method",
		}, []string{"method"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "tickets_operation_duration_seconds",
			Help:    "Duration of cart, checkout and payment operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"}),
	}
}

// RecordCartOperation учитывает операцию корзины с результатом domain.Kind(err).
func (m *TicketMetrics) RecordCartOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.cartOperations.WithLabelValues(operation, domain.Kind(err)).Inc()
}

// RecordCheckout учитывает вызов checkout и исход по позициям.
func (m *TicketMetrics) RecordCheckout(created, failed int) {
	if m == nil {
		return
	}
	m.checkouts.Inc()
	m.checkoutLines.WithLabelValues("created").Add(float64(created))
	m.checkoutLines.WithLabelValues("failed").Add(float64(failed))
}

// RecordOrderTransition учитывает попытку смены статуса заказа.
func (m *TicketMetrics) RecordOrderTransition(to domain.OrderStatus, err error) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(string(to), domain.Kind(err)).Inc()
}

// RecordPayment учитывает запрос оплаты; принятая сумма добавляется к paid_amount.
func (m *TicketMetrics) RecordPayment(method domain.PaymentMethod, amount decimal.Decimal, err error) {
	if m == nil {
		return
	}
	label := string(method)
	if label == "" {
		label = "unknown"
	}
	m.payments.WithLabelValues(label, domain.Kind(err)).Inc()
	if err == nil {
		m.paidAmount.WithLabelValues(label).Add(amount.InexactFloat64())
	}
}

// ObserveDuration записывает длительность операции от started до текущего момента.
func (m *TicketMetrics) ObserveDuration(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
