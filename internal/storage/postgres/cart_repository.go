package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
// Уникальность (user_id, concert_id) обеспечивает constraint cart_user_concert_unique.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) Add(ctx context.Context, entry domain.CartEntry) (domain.CartEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart (id, user_id, concert_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.UserID, entry.ConcertID, entry.Quantity, entry.CreatedAt)
	switch {
	case err == nil:
		return entry, nil
	case isUniqueViolation(err):
		return domain.CartEntry{}, domain.ErrCartEntryExists
	case isForeignKeyViolation(err):
		return domain.CartEntry{}, domain.ErrNotFound
	case isCheckViolation(err):
		return domain.CartEntry{}, domain.ErrInvalidQuantity
	default:
		return domain.CartEntry{}, domain.StorageError("insert cart entry", err)
	}
}

func (r *cartRepository) Remove(ctx context.Context, userID, concertID string) (domain.CartEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var entry domain.CartEntry
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM cart
		WHERE user_id = $1 AND concert_id = $2
		RETURNING id, user_id, concert_id, quantity, created_at
	`, userID, concertID).Scan(&entry.ID, &entry.UserID, &entry.ConcertID, &entry.Quantity, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartEntry{}, domain.ErrCartEntryNotFound
		}
		return domain.CartEntry{}, domain.StorageError("delete cart entry", err)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}

func (r *cartRepository) List(ctx context.Context, userID string) ([]domain.CartItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.concert_id, c.quantity, c.created_at, m.name, m.price
		FROM cart c
		JOIN concerts m ON m.id = c.concert_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id
	`, userID)
	if err != nil {
		return nil, domain.StorageError("list cart", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.ConcertID, &item.Quantity, &item.CreatedAt,
			&item.ConcertName, &item.Price,
		); err != nil {
			return nil, domain.StorageError("scan cart row", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate cart rows", err)
	}
	return items, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
