package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Concert: карточка концерта из внешнего каталога. Для ядра только чтение.
type Concert struct {
	ID          string
	Name        string
	Description string
	Address     string
	// Price: цена одного билета, неотрицательная.
	Price decimal.Decimal
	Date  time.Time
	// Available может быть сброшен каталогом в любой момент.
	Available bool
}
