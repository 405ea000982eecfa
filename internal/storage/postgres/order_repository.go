package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

const orderColumns = `id, user_id, concert_id, quantity, status, payment_method, payment_amount, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return insertOrder(ctx, r.db, order)
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, domain.StorageError("select order", err)
	}
	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string) ([]domain.OrderLine, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.user_id, o.concert_id, o.quantity, o.status, o.payment_method, o.payment_amount,
		       o.created_at, o.updated_at, m.name, m.price, m.date
		FROM orders o
		JOIN concerts m ON m.id = o.concert_id
		WHERE o.user_id = $1
		ORDER BY o.created_at, o.id
	`, userID)
	if err != nil {
		return nil, domain.StorageError("list orders", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var (
			line   domain.OrderLine
			status string
			method sql.NullString
		)
		if err := rows.Scan(
			&line.ID, &line.UserID, &line.ConcertID, &line.Quantity, &status, &method, &line.PaymentAmount,
			&line.CreatedAt, &line.UpdatedAt, &line.ConcertName, &line.ConcertPrice, &line.ConcertDate,
		); err != nil {
			return nil, domain.StorageError("scan order row", err)
		}
		line.Status = domain.OrderStatus(status)
		line.PaymentMethod = domain.PaymentMethod(method.String)
		line.CreatedAt = line.CreatedAt.UTC()
		line.UpdatedAt = line.UpdatedAt.UTC()
		line.ConcertDate = line.ConcertDate.UTC()
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate order rows", err)
	}
	return lines, nil
}

// UpdateStatus выполняет compare-and-set: UPDATE срабатывает только при status = from.
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns,
		id, string(from), string(to), time.Now().UTC(),
	))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.StorageError("update order status", err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return domain.Order{}, fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, id, current.Status)
}

// PlaceOrder удаляет позицию корзины и вставляет заказ в одной транзакции.
func (r *orderRepository) PlaceOrder(ctx context.Context, cartEntryID string, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, "place order", func(tx *sql.Tx) error {
		var cartID string
		err := tx.QueryRowContext(ctx, `
			DELETE FROM cart
			WHERE id = $1 AND user_id = $2 AND concert_id = $3
			RETURNING id
		`, cartEntryID, order.UserID, order.ConcertID).Scan(&cartID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrCartEntryNotFound
			}
			return domain.StorageError("delete cart entry", err)
		}
		return insertOrder(ctx, tx, order)
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertOrder(ctx context.Context, db execer, order domain.Order) error {
	var method sql.NullString
	if order.PaymentMethod != "" {
		method = sql.NullString{String: string(order.PaymentMethod), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		order.ID, order.UserID, order.ConcertID, order.Quantity, string(order.Status),
		method, order.PaymentAmount, order.CreatedAt, order.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isForeignKeyViolation(err):
		return fmt.Errorf("insert order: %w", domain.ErrNotFound)
	case isCheckViolation(err):
		return fmt.Errorf("insert order: %w", domain.ErrInvalidQuantity)
	default:
		return domain.StorageError("insert order", err)
	}
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
		method sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &order.ConcertID, &order.Quantity, &status,
		&method, &order.PaymentAmount, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(method.String)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
