package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

type paymentRepositoryInMemory struct {
	store *Store
}

// NewPaymentRepository возвращает in-memory репозиторий попыток оплаты.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepositoryInMemory{store: store}
}

// Settle сначала проверяет все заказы, затем применяет изменения,
// поэтому при ошибке состояние не меняется.
func (r *paymentRepositoryInMemory) Settle(_ context.Context, attempts []domain.PaymentAttempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, attempt := range attempts {
		record, ok := r.store.orders[attempt.OrderID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if record.order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, attempt.OrderID, record.order.Status)
		}
	}

	now := time.Now().UTC()
	for _, attempt := range attempts {
		if attempt.ID == "" {
			attempt.ID = uuid.NewString()
		}
		if attempt.CreatedAt.IsZero() {
			attempt.CreatedAt = now
		}
		if attempt.Status == "" {
			attempt.Status = domain.PaymentStatusCompleted
		}

		record := r.store.orders[attempt.OrderID]
		record.order.Status = domain.OrderStatusPaid
		record.order.PaymentMethod = attempt.Method
		record.order.PaymentAmount = decimal.NewNullDecimal(attempt.Amount)
		record.order.UpdatedAt = now
		r.store.orders[attempt.OrderID] = record

		r.store.payments = append(r.store.payments, attempt)
	}
	return nil
}

// List возвращает попытки оплаты, новые первыми.
func (r *paymentRepositoryInMemory) List(_ context.Context, limit int) ([]domain.PaymentAttempt, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.PaymentAttempt, len(r.store.payments))
	copy(result, r.store.payments)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
