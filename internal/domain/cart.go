package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxCartQuantity: потолок количества билетов в одной позиции корзины.
const DefaultMaxCartQuantity = 10

// CartEntry: позиция корзины. На пару (UserID, ConcertID) допускается не больше одной записи.
type CartEntry struct {
	ID        string
	UserID    string
	ConcertID string
	Quantity  int
	CreatedAt time.Time
}

// CartItem: позиция корзины вместе с названием и ценой концерта.
type CartItem struct {
	CartEntry
	ConcertName string
	Price       decimal.Decimal
}

// Subtotal возвращает quantity × price.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ValidateQuantity проверяет, что количество лежит в диапазоне [1, max].
// max <= 0 означает потолок по умолчанию.
func ValidateQuantity(quantity, max int) error {
	if max <= 0 {
		max = DefaultMaxCartQuantity
	}
	if quantity < 1 || quantity > max {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidQuantity, max, quantity)
	}
	return nil
}
