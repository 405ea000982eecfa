package memory_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/storage/memory"
)

type fixture struct {
	store   *memory.Store
	catalog *memory.Catalog
	user    domain.User
	concert domain.Concert
}

func newFixture() fixture {
	store := memory.NewStore()
	catalog := memory.NewCatalog(store)
	user := catalog.PutUser(domain.User{Username: "alice"})
	concert := catalog.PutConcert(domain.Concert{
		Name:      "A-Concert",
		Price:     decimal.NewFromInt(100),
		Date:      time.Now().UTC().Add(72 * time.Hour),
		Available: true,
	})
	return fixture{store: store, catalog: catalog, user: user, concert: concert}
}

func newPendingOrder(id string, f fixture) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:        id,
		UserID:    f.user.ID,
		ConcertID: f.concert.ID,
		Quantity:  2,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
