package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/messaging"
	"github.com/vladislavdragonenkov/tickets/internal/messaging/kafka"
)

var errNotDLQRecord = errors.New("message is not an outbox dlq record")

// dlqRecord: payload, который outbox worker кладёт в DLQ.
type dlqRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type replayMessage struct {
	key          string
	value        []byte
	headers      map[string]string
	eventType    string
	publishError string
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func runReplay(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) (replayStats, error) {
	var total replayStats
	if client == nil || consumer == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := processPartition(ctx, consumer, client, producer, cfg, partition, cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return total, nil
}

func processPartition(
	ctx context.Context,
	consumer partitionConsumerSource,
	client offsetClient,
	producer replayProducer,
	cfg config,
	partition int32,
	limit int,
) (replayStats, error) {
	var stats replayStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	startOffset := oldest
	if cfg.fromNewest && newest-int64(limit) > oldest {
		startOffset = newest - int64(limit)
	}

	pc, err := consumer.ConsumePartition(cfg.sourceTopic, partition, startOffset)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idleTimer := time.NewTimer(cfg.idleTimeout)
	defer idleTimer.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case consumeErr := <-pc.Errors():
			if consumeErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumeErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(cfg.idleTimeout)

			stats.processed++
			entry := log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

			replay, err := extractReplayMessage(msg.Value)
			if err != nil {
				stats.skipped++
				entry.WithError(err).Warn("skip unsupported dlq message")
			} else if cfg.eventType != "" && replay.eventType != cfg.eventType {
				stats.skipped++
			} else if cfg.execute {
				if err := producer.Send(cfg.targetTopic, replay.key, replay.value, replay.headers); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
				stats.replayed++
			} else {
				entry.WithFields(log.Fields{
					"target_topic":  cfg.targetTopic,
					"key":           replay.key,
					"event_type":    replay.eventType,
					"publish_error": replay.publishError,
				}).Info("dlq replay candidate")
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idleTimer.C:
			return stats, nil
		}
	}

	return stats, nil
}

// extractReplayMessage разворачивает DLQ-конверт в исходное событие
// и упаковывает его в свежий конверт для основного топика.
func extractReplayMessage(raw []byte) (replayMessage, error) {
	var envelope messaging.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return replayMessage{}, fmt.Errorf("%w: %v", errNotDLQRecord, err)
	}
	if len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return replayMessage{}, errNotDLQRecord
	}

	var record dlqRecord
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return replayMessage{}, fmt.Errorf("decode dlq record: %w", err)
	}
	if len(record.Payload) == 0 {
		return replayMessage{}, fmt.Errorf("dlq record does not contain original event payload")
	}

	original := domain.OutboxMessage{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(record.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(record.EventType, envelope.EventType),
		Payload:       record.Payload,
	}
	value, err := json.Marshal(messaging.NewEnvelope(original, time.Now()))
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayMessage{
		key:   messaging.PartitionKey(original),
		value: value,
		headers: map[string]string{
			kafka.HeaderEventType:     original.EventType,
			kafka.HeaderAggregateType: original.AggregateType,
		},
		eventType:    original.EventType,
		publishError: record.PublishError,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
