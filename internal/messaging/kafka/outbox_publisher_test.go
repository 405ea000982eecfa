package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

func newTestProducer(mock *mocks.SyncProducer) *Producer {
	return NewProducerFromSarama(mock, log.WithField("component", "kafka-outbox-publisher-test"))
}

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderEvents {
			return fmt.Errorf("unexpected topic %s", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-123" {
			return fmt.Errorf("unexpected key %s", key)
		}

		var headerFound bool
		for _, header := range msg.Headers {
			if string(header.Key) == HeaderEventType && string(header.Value) == "order.paid" {
				headerFound = true
			}
		}
		if !headerFound {
			return fmt.Errorf("event type header is missing")
		}

		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var envelope struct {
			EventType string          `json:"event_type"`
			Payload   json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		if envelope.EventType != "order.paid" || string(envelope.Payload) != `{"status":"paid"}` {
			return fmt.Errorf("unexpected envelope %s", value)
		}
		return nil
	})

	publisher := NewOutboxPublisher(newTestProducer(mockProducer), "")
	if publisher.Topic() != TopicOrderEvents {
		t.Fatalf("expected default topic, got %s", publisher.Topic())
	}

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     "order.paid",
		Payload:       []byte(`{"status":"paid"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newTestProducer(mockProducer), TopicDeadLetterQueue)

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: "order",
		AggregateID:   "order-234",
		EventType:     "order.cancelled",
		Payload:       []byte(`{"status":"cancelled"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestOutboxPublisher_PublishCancelledContext(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	publisher := NewOutboxPublisher(newTestProducer(mockProducer), TopicOrderEvents)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := publisher.Publish(ctx, domain.OutboxMessage{ID: "outbox-4"}); err == nil {
		t.Fatal("expected context error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
