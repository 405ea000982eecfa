// Package messaging содержит общий формат сообщений, которые outbox отдаёт брокерам.
package messaging

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

// Envelope: сообщение во внешнем брокере. Payload передаётся как есть.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}

// Marshal сериализует outbox-сообщение в JSON-конверт.
func Marshal(msg domain.OutboxMessage) ([]byte, error) {
	return json.Marshal(NewEnvelope(msg, time.Now()))
}

// PartitionKey возвращает ключ упорядочивания: агрегат, а при его отсутствии id сообщения.
func PartitionKey(msg domain.OutboxMessage) string {
	if msg.AggregateID != "" {
		return msg.AggregateID
	}
	return msg.ID
}
