package grpcapi

import "time"

type AddToCartRequest struct {
	Username string `json:"username"`
	ItemName string `json:"item_name"`
	Quantity int32  `json:"quantity"`
}

type RemoveFromCartRequest struct {
	Username string `json:"username"`
	ItemName string `json:"item_name"`
}

type CartEntry struct {
	ID        string    `json:"id"`
	ConcertID string    `json:"concert_id"`
	ItemName  string    `json:"item_name"`
	Quantity  int32     `json:"quantity"`
	Price     string    `json:"price,omitempty"`
	Subtotal  string    `json:"subtotal,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ListCartRequest struct {
	Username string `json:"username"`
}

type ListCartResponse struct {
	Items []CartEntry `json:"items"`
}

type CheckoutRequest struct {
	Username string `json:"username"`
}

type CheckoutFailure struct {
	ConcertID string `json:"concert_id"`
	ItemName  string `json:"item_name"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
}

type CheckoutResponse struct {
	CreatedOrderIDs []string          `json:"created_order_ids"`
	Failures        []CheckoutFailure `json:"failures"`
}

type ListOrdersRequest struct {
	Username string `json:"username"`
}

type Order struct {
	ID            string    `json:"id"`
	ConcertID     string    `json:"concert_id"`
	ItemName      string    `json:"item_name,omitempty"`
	Quantity      int32     `json:"quantity"`
	Price         string    `json:"price,omitempty"`
	Total         string    `json:"total,omitempty"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	PaymentAmount string    `json:"payment_amount,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
}

type GetOrderSummaryRequest struct {
	Username string `json:"username"`
}

type OrderSummary struct {
	UserID       string `json:"user_id"`
	TotalPrice   string `json:"total_price"`
	PendingTotal string `json:"pending_total"`
	OrderCount   int32  `json:"order_count"`
	Status       string `json:"status"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
}

type PayOrderRequest struct {
	OrderID       string `json:"order_id"`
	PaymentMethod string `json:"payment_method"`
	Amount        string `json:"amount"`
}

type PayUserRequest struct {
	Username      string `json:"username"`
	PaymentMethod string `json:"payment_method"`
	Amount        string `json:"amount"`
}

type PaymentReceipt struct {
	OrderIDs      []string  `json:"order_ids"`
	PaymentMethod string    `json:"payment_method"`
	Amount        string    `json:"amount"`
	Total         string    `json:"total"`
	Change        string    `json:"change"`
	PaidAt        time.Time `json:"paid_at"`
}
