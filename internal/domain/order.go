package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан при оформлении корзины и ждёт оплаты.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid: оплата принята, терминальный статус.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCancelled: заказ отменён до оплаты, терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// CanTransition разрешает только pending → paid и pending → cancelled.
func CanTransition(from, to OrderStatus) bool {
	return from == OrderStatusPending && (to == OrderStatusPaid || to == OrderStatusCancelled)
}

// ValidateTransition возвращает ErrInvalidTransition с контекстом для запрещённых переходов.
func ValidateTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Order: одна строка заказа: один концерт в заданном количестве.
// Оформление корзины из N позиций создаёт N заказов.
type Order struct {
	ID        string
	UserID    string
	ConcertID string
	Quantity  int
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	// PaymentMethod и PaymentAmount заполняются при переходе в paid.
	PaymentMethod PaymentMethod
	PaymentAmount decimal.NullDecimal
}

// OrderLine: заказ вместе с данными концерта для отображения и подсчёта сумм.
type OrderLine struct {
	Order
	ConcertName  string
	ConcertPrice decimal.Decimal
	ConcertDate  time.Time
}

// Total возвращает quantity × price строки.
func (l OrderLine) Total() decimal.Decimal {
	return l.ConcertPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// AggregateStatus: производный статус набора заказов пользователя.
type AggregateStatus string

const (
	AggregateStatusPending   AggregateStatus = "pending"
	AggregateStatusPaid      AggregateStatus = "paid"
	AggregateStatusCancelled AggregateStatus = "cancelled"
	AggregateStatusEmpty     AggregateStatus = "empty"
)

// OrderSummary: агрегированное представление заказов пользователя.
// Не хранится, вычисляется при чтении.
type OrderSummary struct {
	UserID       string
	TotalPrice   decimal.Decimal
	PendingTotal decimal.Decimal
	OrderCount   int
	Status       AggregateStatus
}

// Summarize считает агрегат: любой pending делает весь набор pending,
// иначе paid при наличии хотя бы одной оплаты, иначе cancelled.
func Summarize(userID string, lines []OrderLine) OrderSummary {
	summary := OrderSummary{
		UserID:       userID,
		TotalPrice:   decimal.Zero,
		PendingTotal: decimal.Zero,
		OrderCount:   len(lines),
		Status:       AggregateStatusEmpty,
	}
	if len(lines) == 0 {
		return summary
	}

	var pending, paid bool
	for _, line := range lines {
		total := line.Total()
		summary.TotalPrice = summary.TotalPrice.Add(total)
		switch line.Status {
		case OrderStatusPending:
			pending = true
			summary.PendingTotal = summary.PendingTotal.Add(total)
		case OrderStatusPaid:
			paid = true
		}
	}

	switch {
	case pending:
		summary.Status = AggregateStatusPending
	case paid:
		summary.Status = AggregateStatusPaid
	default:
		summary.Status = AggregateStatusCancelled
	}
	return summary
}
