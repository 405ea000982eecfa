package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// CatalogRepository читает пользователей и концерты из общих таблиц.
// Upsert-методы нужны для сидирования окружения и интеграционных тестов.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-справочник пользователей и концертов.
func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{db: store.DB()}
}

func (r *CatalogRepository) UserByName(ctx context.Context, username string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		user domain.User
		role string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, role
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, domain.StorageError("select user", err)
	}
	user.Role = domain.Role(role)
	return user, nil
}

func (r *CatalogRepository) ConcertByID(ctx context.Context, id string) (domain.Concert, error) {
	return r.selectConcert(ctx, `WHERE id = $1`, id)
}

func (r *CatalogRepository) ConcertByName(ctx context.Context, name string) (domain.Concert, error) {
	return r.selectConcert(ctx, `WHERE name = $1`, name)
}

func (r *CatalogRepository) ListAvailable(ctx context.Context) ([]domain.Concert, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, concertColumns+`
		WHERE available = TRUE
		ORDER BY date, name
	`)
	if err != nil {
		return nil, domain.StorageError("list concerts", err)
	}
	defer rows.Close()

	result := make([]domain.Concert, 0)
	for rows.Next() {
		concert, err := scanConcert(rows)
		if err != nil {
			return nil, domain.StorageError("scan concert", err)
		}
		result = append(result, concert)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate concerts", err)
	}
	return result, nil
}

// UpsertUser создаёт пользователя или обновляет его роль. Пустой ID генерируется.
func (r *CatalogRepository) UpsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role
		RETURNING id
	`, user.ID, user.Username, string(user.Role)).Scan(&user.ID)
	if err != nil {
		return domain.User{}, domain.StorageError("upsert user", err)
	}
	return user, nil
}

// UpsertConcert создаёт концерт или обновляет его по уникальному названию.
func (r *CatalogRepository) UpsertConcert(ctx context.Context, concert domain.Concert) (domain.Concert, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if concert.ID == "" {
		concert.ID = uuid.NewString()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO concerts (id, name, description, address, price, date, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			address = EXCLUDED.address,
			price = EXCLUDED.price,
			date = EXCLUDED.date,
			available = EXCLUDED.available
		RETURNING id
	`,
		concert.ID, concert.Name, concert.Description, concert.Address,
		concert.Price, concert.Date, concert.Available,
	).Scan(&concert.ID)
	if err != nil {
		return domain.Concert{}, domain.StorageError("upsert concert", err)
	}
	return concert, nil
}

// SetAvailable переключает флаг доступности концерта.
func (r *CatalogRepository) SetAvailable(ctx context.Context, concertID string, available bool) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE concerts SET available = $2 WHERE id = $1`, concertID, available)
	if err != nil {
		return domain.StorageError("update concert availability", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.StorageError("update concert availability", err)
	}
	if affected == 0 {
		return domain.ErrConcertNotFound
	}
	return nil
}

const concertColumns = `
	SELECT id, name, description, address, price, date, available
	FROM concerts
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConcert(row rowScanner) (domain.Concert, error) {
	var concert domain.Concert
	err := row.Scan(
		&concert.ID, &concert.Name, &concert.Description, &concert.Address,
		&concert.Price, &concert.Date, &concert.Available,
	)
	concert.Date = concert.Date.UTC()
	return concert, err
}

func (r *CatalogRepository) selectConcert(ctx context.Context, where string, arg string) (domain.Concert, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	concert, err := scanConcert(r.db.QueryRowContext(ctx, concertColumns+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Concert{}, domain.ErrConcertNotFound
		}
		return domain.Concert{}, domain.StorageError("select concert", err)
	}
	return concert, nil
}

var (
	_ domain.UserDirectory  = (*CatalogRepository)(nil)
	_ domain.ConcertCatalog = (*CatalogRepository)(nil)
)
