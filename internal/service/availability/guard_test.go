package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/storage/memory"
)

func TestGuard(t *testing.T) {
	catalog := memory.NewCatalog(memory.NewStore())
	open := catalog.PutConcert(domain.Concert{Name: "Open", Price: decimal.NewFromInt(10), Available: true})
	closed := catalog.PutConcert(domain.Concert{Name: "Closed", Price: decimal.NewFromInt(10)})
	guard := NewGuard(catalog)
	ctx := context.Background()

	tests := []struct {
		name      string
		concertID string
		want      bool
		wantErr   error
	}{
		{name: "available", concertID: open.ID, want: true},
		{name: "unavailable", concertID: closed.ID, want: false, wantErr: domain.ErrConcertUnavailable},
		{name: "unknown", concertID: "missing", wantErr: domain.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := guard.IsPurchasable(ctx, tc.concertID)
			if tc.concertID == "missing" {
				if !errors.Is(err, domain.ErrNotFound) {
					t.Fatalf("expected not found, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}

			err = guard.Require(ctx, tc.concertID)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected require error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestGuard_ReflectsAvailabilityChanges(t *testing.T) {
	catalog := memory.NewCatalog(memory.NewStore())
	concert := catalog.PutConcert(domain.Concert{Name: "Flip", Price: decimal.NewFromInt(10), Available: true})
	guard := NewGuard(catalog)

	if err := catalog.SetAvailable(concert.ID, false); err != nil {
		t.Fatalf("set available: %v", err)
	}
	if err := guard.Require(context.Background(), concert.ID); !errors.Is(err, domain.ErrConcertUnavailable) {
		t.Fatalf("expected unavailable after flip, got %v", err)
	}
}
