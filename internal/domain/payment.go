package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod: способ оплаты, выбранный покупателем.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodPayPal     PaymentMethod = "paypal"
	PaymentMethodCash       PaymentMethod = "cash"
)

// ParsePaymentMethod проверяет строку и возвращает ErrInvalidPaymentMethod для неизвестных значений.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	method := PaymentMethod(raw)
	switch method {
	case PaymentMethodCreditCard, PaymentMethodPayPal, PaymentMethodCash:
		return method, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, raw)
	}
}

// PaymentStatus описывает результат попытки оплаты.
type PaymentStatus string

const (
	// PaymentStatusCompleted: попытка принята, заказ переведён в paid.
	PaymentStatusCompleted PaymentStatus = "completed"
)

// PaymentAttempt: сохранённая попытка оплаты конкретного заказа.
type PaymentAttempt struct {
	ID        string
	OrderID   string
	UserID    string
	Method    PaymentMethod
	Amount    decimal.Decimal
	Status    PaymentStatus
	CreatedAt time.Time
}

// Receipt: подтверждение принятой оплаты одного или нескольких заказов.
type Receipt struct {
	OrderIDs []string
	Method   PaymentMethod
	Amount   decimal.Decimal
	Total    decimal.Decimal
	PaidAt   time.Time
}

// Change возвращает сдачу: разницу между внесённой суммой и итогом.
func (r Receipt) Change() decimal.Decimal {
	return r.Amount.Sub(r.Total)
}

// Денежные колонки хранятся как NUMERIC(10, 2).
const MoneyScale = 2

// MaxPaymentAmount: наибольшая сумма, которую вмещает NUMERIC(10, 2).
var MaxPaymentAmount = decimal.RequireFromString("99999999.99")

// ValidateAmount требует неотрицательную сумму не меньше итога, не больше MaxPaymentAmount
// и без долей меньше копейки. Нулевая сумма проходит только при нулевом итоге.
func ValidateAmount(amount, total decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative, got %s", ErrInvalidAmount, amount.String())
	}
	if !amount.Equal(amount.Round(MoneyScale)) {
		return fmt.Errorf("%w: amount %s has more than %d decimal places", ErrInvalidAmount, amount.String(), MoneyScale)
	}
	if amount.GreaterThan(MaxPaymentAmount) {
		return fmt.Errorf("%w: amount %s exceeds %s", ErrInvalidAmount, amount.String(), MaxPaymentAmount.StringFixed(MoneyScale))
	}
	if amount.LessThan(total) {
		return fmt.Errorf("%w: amount %s is less than total %s", ErrInvalidAmount, amount.String(), total.String())
	}
	return nil
}

// AllocatePayment распределяет внесённую сумму по строкам: каждая получает свой итог,
// излишек достаётся последней строке, так что сумма попыток равна amount.
func AllocatePayment(amount decimal.Decimal, lines []OrderLine) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(lines))
	allocated := decimal.Zero
	for i, line := range lines {
		shares[i] = line.Total()
		allocated = allocated.Add(shares[i])
	}
	if n := len(shares); n > 0 {
		shares[n-1] = shares[n-1].Add(amount.Sub(allocated))
	}
	return shares
}
