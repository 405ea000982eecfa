package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/storage/memory"
)

type failingOutbox struct {
	domain.OutboxRepository
}

func (failingOutbox) Enqueue(context.Context, domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox down")
}

func TestRecorder_OrderChanged(t *testing.T) {
	repo := memory.NewOutboxRepository()
	recorder := NewRecorder(repo, nil)

	recorder.OrderChanged(context.Background(), domain.EventOrderPaid, domain.Order{
		ID:            "order-1",
		UserID:        "user-1",
		ConcertID:     "concert-1",
		Quantity:      2,
		Status:        domain.OrderStatusPaid,
		PaymentMethod: domain.PaymentMethodCash,
		PaymentAmount: decimal.NewNullDecimal(decimal.NewFromInt(200)),
	})

	pending := repo.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, "order.paid", pending[0].EventType)
	require.Equal(t, "order-1", pending[0].AggregateID)

	var decoded struct {
		EventType string     `json:"event_type"`
		Data      OrderEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(pending[0].Payload, &decoded))
	require.Equal(t, "order.paid", decoded.EventType)
	require.Equal(t, "200.00", decoded.Data.PaymentAmount)
	require.Equal(t, "cash", decoded.Data.PaymentMethod)
}

func TestRecorder_EnqueueFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	recorder := NewRecorder(failingOutbox{}, logrus.NewEntry(logger))

	recorder.Record(context.Background(), domain.AggregateCart, "user-1", domain.EventCartItemAdded, CartEvent{Username: "alice"})

	require.Len(t, hook.Entries, 1)
	require.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	require.Equal(t, "failed to enqueue outbox event", hook.LastEntry().Message)
}

func TestRecorder_NilRepositoryIsNoop(t *testing.T) {
	var nilRecorder *Recorder
	nilRecorder.Record(context.Background(), domain.AggregateCart, "user-1", domain.EventCartItemAdded, nil)

	NewRecorder(nil, nil).Record(context.Background(), domain.AggregateCart, "user-1", domain.EventCartItemAdded, nil)
}
