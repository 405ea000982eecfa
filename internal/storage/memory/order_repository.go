package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// orderRepositoryInMemory: простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.insertLocked(order)
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	record, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return record.order, nil
}

// ListByUser возвращает заказы пользователя по возрастанию времени создания.
func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID string) ([]domain.OrderLine, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	records := make([]orderRecord, 0)
	for _, record := range r.store.orders {
		if record.order.UserID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].order.CreatedAt.Equal(records[j].order.CreatedAt) {
			return records[i].order.CreatedAt.Before(records[j].order.CreatedAt)
		}
		return records[i].seq < records[j].seq
	})

	lines := make([]domain.OrderLine, 0, len(records))
	for _, record := range records {
		concert := r.store.concerts[record.order.ConcertID]
		lines = append(lines, domain.OrderLine{
			Order:        record.order,
			ConcertName:  concert.Name,
			ConcertPrice: concert.Price,
			ConcertDate:  concert.Date,
		})
	}
	return lines, nil
}

// UpdateStatus выполняет compare-and-set статуса под блокировкой.
func (r *orderRepositoryInMemory) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	record, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if record.order.Status != from {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, id, record.order.Status)
	}
	record.order.Status = to
	record.order.UpdatedAt = time.Now().UTC()
	r.store.orders[id] = record
	return record.order, nil
}

// PlaceOrder создаёт заказ и удаляет позицию корзины под одной блокировкой.
func (r *orderRepositoryInMemory) PlaceOrder(_ context.Context, cartEntryID string, order domain.Order) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := cartKey{userID: order.UserID, concertID: order.ConcertID}
	record, ok := r.store.cart[key]
	if !ok || record.entry.ID != cartEntryID {
		return domain.ErrCartEntryNotFound
	}
	if err := r.insertLocked(order); err != nil {
		return err
	}
	delete(r.store.cart, key)
	return nil
}

func (r *orderRepositoryInMemory) insertLocked(order domain.Order) error {
	if _, exists := r.store.orders[order.ID]; exists {
		return domain.StorageError("insert order", fmt.Errorf("order %s already exists", order.ID))
	}
	r.store.orders[order.ID] = orderRecord{order: order, seq: r.store.nextSeq()}
	return nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
