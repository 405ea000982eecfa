package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// cartRepositoryInMemory: in-memory реализация CartRepository.
type cartRepositoryInMemory struct {
	store *Store
}

// NewCartRepository возвращает репозиторий корзин поверх общего состояния.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepositoryInMemory{store: store}
}

// Add сохраняет позицию, если для (user, concert) её ещё нет.
// Проверка и вставка выполняются под одной блокировкой.
func (r *cartRepositoryInMemory) Add(_ context.Context, entry domain.CartEntry) (domain.CartEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := cartKey{userID: entry.UserID, concertID: entry.ConcertID}
	if _, exists := r.store.cart[key]; exists {
		return domain.CartEntry{}, domain.ErrCartEntryExists
	}
	r.store.cart[key] = cartRecord{entry: entry, seq: r.store.nextSeq()}
	return entry, nil
}

// Remove удаляет позицию по ключу (user, concert).
func (r *cartRepositoryInMemory) Remove(_ context.Context, userID, concertID string) (domain.CartEntry, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key := cartKey{userID: userID, concertID: concertID}
	record, ok := r.store.cart[key]
	if !ok {
		return domain.CartEntry{}, domain.ErrCartEntryNotFound
	}
	delete(r.store.cart, key)
	return record.entry, nil
}

// List возвращает позиции пользователя по возрастанию времени добавления.
func (r *cartRepositoryInMemory) List(_ context.Context, userID string) ([]domain.CartItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	records := make([]cartRecord, 0)
	for key, record := range r.store.cart {
		if key.userID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].entry.CreatedAt.Equal(records[j].entry.CreatedAt) {
			return records[i].entry.CreatedAt.Before(records[j].entry.CreatedAt)
		}
		return records[i].seq < records[j].seq
	})

	items := make([]domain.CartItem, 0, len(records))
	for _, record := range records {
		concert := r.store.concerts[record.entry.ConcertID]
		items = append(items, domain.CartItem{
			CartEntry:   record.entry,
			ConcertName: concert.Name,
			Price:       concert.Price,
		})
	}
	return items, nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
