package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/storage/memory"
)

func TestPaymentRepository_Settle(t *testing.T) {
	f := newFixture()
	orders := memory.NewOrderRepository(f.store)
	payments := memory.NewPaymentRepository(f.store)
	ctx := context.Background()

	if err := orders.Create(ctx, newPendingOrder("order-1", f)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	attempt := domain.PaymentAttempt{
		OrderID: "order-1",
		UserID:  f.user.ID,
		Method:  domain.PaymentMethodCash,
		Amount:  decimal.NewFromInt(200),
		Status:  domain.PaymentStatusCompleted,
	}
	if err := payments.Settle(ctx, []domain.PaymentAttempt{attempt}); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	order, err := orders.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if order.Status != domain.OrderStatusPaid || order.PaymentMethod != domain.PaymentMethodCash {
		t.Fatalf("unexpected order after settle: %+v", order)
	}
	if !order.PaymentAmount.Valid || !order.PaymentAmount.Decimal.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected payment amount 200, got %+v", order.PaymentAmount)
	}

	if err := payments.Settle(ctx, []domain.PaymentAttempt{attempt}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on re-pay, got %v", err)
	}

	list, err := payments.List(ctx, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(list))
	}
	if list[0].ID == "" || list[0].CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %+v", list[0])
	}
}

func TestPaymentRepository_SettleRollsBackOnAnyNonPending(t *testing.T) {
	f := newFixture()
	orders := memory.NewOrderRepository(f.store)
	payments := memory.NewPaymentRepository(f.store)
	ctx := context.Background()

	for _, id := range []string{"order-1", "order-2"} {
		if err := orders.Create(ctx, newPendingOrder(id, f)); err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
	}
	if _, err := orders.UpdateStatus(ctx, "order-2", domain.OrderStatusPending, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	err := payments.Settle(ctx, []domain.PaymentAttempt{
		{OrderID: "order-1", Method: domain.PaymentMethodPayPal, Amount: decimal.NewFromInt(200)},
		{OrderID: "order-2", Method: domain.PaymentMethodPayPal, Amount: decimal.NewFromInt(200)},
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	first, err := orders.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if first.Status != domain.OrderStatusPending {
		t.Fatalf("order-1 must stay pending, got %s", first.Status)
	}
	list, _ := payments.List(ctx, 0)
	if len(list) != 0 {
		t.Fatalf("expected no attempts, got %d", len(list))
	}
}
