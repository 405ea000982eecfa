package domain

// EventType: тип доменного события, попадающего в outbox.
type EventType string

const (
	EventCartItemAdded     EventType = "cart.item_added"
	EventCartItemRemoved   EventType = "cart.item_removed"
	EventOrderCreated      EventType = "order.created"
	EventOrderPaid         EventType = "order.paid"
	EventOrderCancelled    EventType = "order.cancelled"
	EventCheckoutCompleted EventType = "checkout.completed"
)

// Типы агрегатов для outbox.
const (
	AggregateCart  = "cart"
	AggregateOrder = "order"
	AggregateUser  = "user"
)
