package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// Catalog: in-memory справочник пользователей и концертов.
// Методы Put*/SetAvailable заменяют внешние сервисы в тестах и при локальном запуске.
type Catalog struct {
	store *Store
}

// NewCatalog возвращает справочник поверх общего состояния.
func NewCatalog(store *Store) *Catalog {
	return &Catalog{store: store}
}

// PutUser добавляет или заменяет пользователя. Пустой ID генерируется.
func (c *Catalog) PutUser(user domain.User) domain.User {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.users[user.Username] = user
	return user
}

// PutConcert добавляет или заменяет концерт. Пустой ID генерируется.
func (c *Catalog) PutConcert(concert domain.Concert) domain.Concert {
	if concert.ID == "" {
		concert.ID = uuid.NewString()
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if prev, ok := c.store.concerts[concert.ID]; ok && prev.Name != concert.Name {
		delete(c.store.concertNames, prev.Name)
	}
	c.store.concerts[concert.ID] = concert
	c.store.concertNames[concert.Name] = concert.ID
	return concert
}

// SetAvailable переключает флаг доступности, как это делает администратор каталога.
func (c *Catalog) SetAvailable(concertID string, available bool) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	concert, ok := c.store.concerts[concertID]
	if !ok {
		return domain.ErrConcertNotFound
	}
	concert.Available = available
	c.store.concerts[concertID] = concert
	return nil
}

func (c *Catalog) UserByName(_ context.Context, username string) (domain.User, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	user, ok := c.store.users[username]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (c *Catalog) ConcertByID(_ context.Context, id string) (domain.Concert, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	concert, ok := c.store.concerts[id]
	if !ok {
		return domain.Concert{}, domain.ErrConcertNotFound
	}
	return concert, nil
}

func (c *Catalog) ConcertByName(_ context.Context, name string) (domain.Concert, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	id, ok := c.store.concertNames[name]
	if !ok {
		return domain.Concert{}, domain.ErrConcertNotFound
	}
	return c.store.concerts[id], nil
}

func (c *Catalog) ListAvailable(_ context.Context) ([]domain.Concert, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	result := make([]domain.Concert, 0, len(c.store.concerts))
	for _, concert := range c.store.concerts {
		if concert.Available {
			result = append(result, concert)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

var (
	_ domain.UserDirectory  = (*Catalog)(nil)
	_ domain.ConcertCatalog = (*Catalog)(nil)
)
