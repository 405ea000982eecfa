package kafka

// Topics для Kafka
const (
	TopicOrderEvents     = "tickets.order.events"
	TopicDeadLetterQueue = "tickets.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOriginalTopic = "x-original-topic"
)
