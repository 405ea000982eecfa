package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

func TestCatalog_ResolveAndAvailability(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	user, err := f.catalog.UserByName(ctx, "alice")
	if err != nil {
		t.Fatalf("user lookup failed: %v", err)
	}
	if user.Role != domain.RoleUser {
		t.Fatalf("expected default role user, got %s", user.Role)
	}
	if _, err := f.catalog.UserByName(ctx, "bob"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}

	concert, err := f.catalog.ConcertByName(ctx, "A-Concert")
	if err != nil {
		t.Fatalf("concert lookup failed: %v", err)
	}
	if concert.ID != f.concert.ID {
		t.Fatalf("expected id %s, got %s", f.concert.ID, concert.ID)
	}

	if err := f.catalog.SetAvailable(concert.ID, false); err != nil {
		t.Fatalf("set available failed: %v", err)
	}
	updated, err := f.catalog.ConcertByID(ctx, concert.ID)
	if err != nil {
		t.Fatalf("concert by id failed: %v", err)
	}
	if updated.Available {
		t.Fatal("expected concert to be unavailable")
	}
	if err := f.catalog.SetAvailable("missing", true); !errors.Is(err, domain.ErrConcertNotFound) {
		t.Fatalf("expected concert not found, got %v", err)
	}
}

func TestCatalog_ListAvailableSortedByDate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	early := f.catalog.PutConcert(domain.Concert{
		Name:      "Early",
		Price:     decimal.NewFromInt(10),
		Date:      time.Now().UTC().Add(time.Hour),
		Available: true,
	})
	f.catalog.PutConcert(domain.Concert{Name: "Hidden", Price: decimal.NewFromInt(10)})

	concerts, err := f.catalog.ListAvailable(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(concerts) != 2 {
		t.Fatalf("expected 2 available concerts, got %d", len(concerts))
	}
	if concerts[0].ID != early.ID {
		t.Fatalf("expected earliest concert first, got %s", concerts[0].Name)
	}
}
