package domain

import (
	"context"
	"time"
)

// UserDirectory разрешает username в пользователя. Реализуется сервисом аутентификации.
type UserDirectory interface {
	// UserByName возвращает пользователя или ErrUserNotFound.
	UserByName(ctx context.Context, username string) (User, error)
}

// ConcertCatalog предоставляет данные концертов только для чтения.
type ConcertCatalog interface {
	// ConcertByID возвращает концерт или ErrConcertNotFound.
	ConcertByID(ctx context.Context, id string) (Concert, error)
	// ConcertByName возвращает концерт по уникальному названию или ErrConcertNotFound.
	ConcertByName(ctx context.Context, name string) (Concert, error)
	// ListAvailable возвращает концерты с флагом available, отсортированные по дате.
	ListAvailable(ctx context.Context) ([]Concert, error)
}

// CartRepository хранит позиции корзины. Уникальность (UserID, ConcertID)
// обеспечивается самим хранилищем.
type CartRepository interface {
	// Add сохраняет новую позицию или возвращает ErrCartEntryExists.
	Add(ctx context.Context, entry CartEntry) (CartEntry, error)
	// Remove удаляет позицию по ключу (user, concert) и возвращает удалённую запись
	// или ErrCartEntryNotFound.
	Remove(ctx context.Context, userID, concertID string) (CartEntry, error)
	// List возвращает позиции пользователя по возрастанию created_at.
	List(ctx context.Context, userID string) ([]CartItem, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя с данными концерта по возрастанию created_at.
	ListByUser(ctx context.Context, userID string) ([]OrderLine, error)
	// UpdateStatus атомарно меняет статус from → to. Если текущий статус отличается от from,
	// возвращает ErrInvalidTransition и ничего не пишет.
	UpdateStatus(ctx context.Context, id string, from, to OrderStatus) (Order, error)
	// PlaceOrder в одной транзакции создаёт заказ и удаляет позицию корзины cartEntryID
	// с ключом (order.UserID, order.ConcertID). Если позиции уже нет или под тем же ключом
	// лежит другая позиция, возвращает ErrCartEntryNotFound и заказ не создаётся.
	PlaceOrder(ctx context.Context, cartEntryID string, order Order) error
}

// PaymentRepository хранит попытки оплаты.
type PaymentRepository interface {
	// Settle в одной транзакции переводит заказы попыток из pending в paid,
	// записывает способ и сумму оплаты в заказ и сохраняет попытки.
	// Любой заказ не в pending откатывает всё с ErrInvalidTransition.
	Settle(ctx context.Context, attempts []PaymentAttempt) error
	// List возвращает последние попытки оплаты, limit <= 0 означает без ограничения.
	List(ctx context.Context, limit int) ([]PaymentAttempt, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPurger удаляет обработанные (sent и failed) сообщения outbox,
// обновлённые не позже before. За вызов удаляется не больше limit записей.
type OutboxPurger interface {
	DeleteProcessed(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
