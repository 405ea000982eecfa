package domain

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок. Транспортный слой сопоставляет их с кодами ответа,
// поэтому все уточнённые ошибки ниже оборачивают один из этих видов.
var (
	// ErrNotFound: неизвестный пользователь, концерт, позиция корзины или заказ.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuantity: количество вне диапазона [1, потолок корзины].
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidAmount: сумма платежа меньше требуемой или неположительная.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrDuplicate: позиция (user, concert) уже есть в корзине.
	ErrDuplicate = errors.New("duplicate")
	// ErrEmptyCart: оформление заказа из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidTransition: недопустимая смена статуса заказа, в том числе повторная оплата.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStorage: сбой хранилища, не классифицированный иначе.
	ErrStorage = errors.New("storage error")
	// ErrValidation: некорректные входные данные, не покрытые видами выше.
	ErrValidation = errors.New("validation failed")
)

var (
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrConcertNotFound      = fmt.Errorf("concert %w", ErrNotFound)
	ErrCartEntryNotFound    = fmt.Errorf("cart entry %w", ErrNotFound)
	ErrOrderNotFound        = fmt.Errorf("order %w", ErrNotFound)
	ErrNoPendingOrders      = fmt.Errorf("pending orders %w", ErrNotFound)
	ErrCartEntryExists      = fmt.Errorf("concert already in cart: %w", ErrDuplicate)
	ErrConcertUnavailable   = errors.New("concert is not available for purchase")
	ErrInvalidPaymentMethod = fmt.Errorf("unsupported payment method: %w", ErrValidation)
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// StorageError оборачивает ошибку драйвера так, чтобы errors.Is(err, ErrStorage) было истинным,
// а исходная причина оставалась доступной через errors.Is/As.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// IsNotFound проверяет, относится ли ошибка к виду NotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate проверяет, является ли ошибка нарушением уникальности корзины.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// Kind возвращает машинно-читаемое имя вида ошибки для ответов API и меток метрик.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConcertUnavailable):
		return "unavailable"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "storage_error"
	}
}
