package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

// Settle переводит заказы в paid и пишет попытки оплаты в одной транзакции.
// Переход защищён условием status = 'pending', поэтому параллельная оплата
// того же заказа получает ErrInvalidTransition.
func (r *paymentRepository) Settle(ctx context.Context, attempts []domain.PaymentAttempt) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	return withTx(ctx, r.db, "settle payment", func(tx *sql.Tx) error {
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

			res, err := tx.ExecContext(ctx, `
				UPDATE orders
				SET status = 'paid', payment_method = $2, payment_amount = $3, updated_at = $4
				WHERE id = $1 AND status = 'pending'
			`, attempt.OrderID, string(attempt.Method), attempt.Amount, now)
			if err != nil {
				return domain.StorageError("mark order paid", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return domain.StorageError("mark order paid", err)
			}
			if affected == 0 {
				return settleConflict(ctx, tx, attempt.OrderID)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO payments (id, order_id, user_id, method, amount, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`,
				attempt.ID, attempt.OrderID, attempt.UserID, string(attempt.Method),
				attempt.Amount, string(attempt.Status), attempt.CreatedAt,
			); err != nil {
				return domain.StorageError("insert payment", err)
			}
		}
		return nil
	})
}

func (r *paymentRepository) List(ctx context.Context, limit int) ([]domain.PaymentAttempt, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `
		SELECT id, order_id, user_id, method, amount, status, created_at
		FROM payments
		ORDER BY created_at DESC, id
	`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, domain.StorageError("list payments", err)
	}
	defer rows.Close()

	result := make([]domain.PaymentAttempt, 0)
	for rows.Next() {
		var (
			attempt domain.PaymentAttempt
			method  string
			status  string
		)
		if err := rows.Scan(
			&attempt.ID, &attempt.OrderID, &attempt.UserID, &method,
			&attempt.Amount, &status, &attempt.CreatedAt,
		); err != nil {
			return nil, domain.StorageError("scan payment row", err)
		}
		attempt.Method = domain.PaymentMethod(method)
		attempt.Status = domain.PaymentStatus(status)
		attempt.CreatedAt = attempt.CreatedAt.UTC()
		result = append(result, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate payment rows", err)
	}
	return result, nil
}

// settleConflict уточняет причину: заказа нет или он уже не pending.
func settleConflict(ctx context.Context, tx *sql.Tx, orderID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return domain.StorageError("select order status", err)
	}
	return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, orderID, status)
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
