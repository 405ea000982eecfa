// Package grpcapi реализует TicketService поверх прикладных сервисов.
// Сообщения передаются JSON-кодеком, дескриптор сервиса описан вручную.
package grpcapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/auth"
	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/service/cart"
	"github.com/vladislavdragonenkov/tickets/internal/service/checkout"
	"github.com/vladislavdragonenkov/tickets/internal/service/ledger"
	"github.com/vladislavdragonenkov/tickets/internal/service/payment"
)

// Services: прикладные сервисы, которые обслуживает TicketService.
type Services struct {
	Cart     *cart.Store
	Checkout *checkout.Coordinator
	Ledger   *ledger.Ledger
	Payments *payment.Processor
}

// Server реализует TicketServiceServer. Ошибки переводятся в gRPC-статусы интерцептором.
type Server struct {
	svc         Services
	authEnabled bool
	logger      *log.Entry
}

// NewServer создаёт реализацию сервиса. authEnabled включает проверку владельца
// по identity, которую кладёт AuthInterceptor.
func NewServer(svc Services, authEnabled bool, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "grpc-ticket-service")
	}
	return &Server{svc: svc, authEnabled: authEnabled, logger: logger}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}
	return nil
}

func (s *Server) authorizeUser(ctx context.Context, username string) error {
	if !s.authEnabled {
		return nil
	}
	identity, ok := auth.FromContext(ctx)
	if !ok {
		return auth.ErrMissingToken
	}
	return auth.Authorize(identity, username)
}

func (s *Server) authorizeOrder(ctx context.Context, orderID string) error {
	if !s.authEnabled {
		return nil
	}
	identity, ok := auth.FromContext(ctx)
	if !ok {
		return auth.ErrMissingToken
	}
	if identity.IsAdmin() {
		return nil
	}
	owned, err := s.svc.Ledger.OwnedBy(ctx, orderID, identity.Username)
	if err != nil {
		return err
	}
	if !owned {
		return fmt.Errorf("%w: order %s belongs to another user", auth.ErrForbidden, orderID)
	}
	return nil
}

func (s *Server) AddToCart(ctx context.Context, req *AddToCartRequest) (*CartEntry, error) {
	if err := required("username", req.Username); err != nil {
		return nil, err
	}
	if err := required("item_name", req.ItemName); err != nil {
		return nil, err
	}
	if err := s.authorizeUser(ctx, req.Username); err != nil {
		return nil, err
	}

	entry, err := s.svc.Cart.Add(ctx, req.Username, req.ItemName, int(req.Quantity))
	if err != nil {
		return nil, err
	}
	return &CartEntry{
		ID:        entry.ID,
		ConcertID: entry.ConcertID,
		ItemName:  req.ItemName,
		Quantity:  int32(entry.Quantity),
		CreatedAt: entry.CreatedAt,
	}, nil
}

func (s *Server) RemoveFromCart(ctx context.Context, req *RemoveFromCartRequest) (*CartEntry, error) {
	if err := required("username", req.Username); err != nil {
		return nil, err
	}
	if err := required("item_name", req.ItemName); err != nil {
		return nil, err
	}
	if err := s.authorizeUser(ctx, req.Username); err != nil {
		return nil, err
	}

	entry, err := s.svc.Cart.Remove(ctx, req.Username, req.ItemName)
	if err != nil {
		return nil, err
	}
	return &CartEntry{
		ID:        entry.ID,
		ConcertID: entry.ConcertID,
		ItemName:  req.ItemName,
		Quantity:  int32(entry.Quantity),
		CreatedAt: entry.CreatedAt,
	}, nil
}

func (s *Server) ListCart(ctx context.Context, req *ListCartRequest) (*ListCartResponse, error) {
	if err := s.authorizeUser(ctx, req.Username); err != nil {
		return nil, err
	}

	items, err := s.svc.Cart.List(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	resp := &ListCartResponse{Items: make([]CartEntry, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, CartEntry{
			ID:        item.ID,
			ConcertID: item.ConcertID,
			ItemName:  item.ConcertName,
			Quantity:  int32(item.Quantity),
			Price:     money(item.Price),
			Subtotal:  money(item.Subtotal()),
			CreatedAt: item.CreatedAt,
		})
	}
	return resp, nil
}

func (s *Server) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	if err := s.authorizeUser(ctx, req.Username); err != nil {
		return nil, err
	}

	result, err := s.svc.Checkout.Checkout(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	resp := &CheckoutResponse{
		CreatedOrderIDs: result.CreatedOrderIDs,
		Failures:        make([]CheckoutFailure, 0, len(result.Failures)),
	}
	for _, failure := range result.Failures {
		resp.Failures = append(resp.Failures, CheckoutFailure{
			ConcertID: failure.ConcertID,
			ItemName:  failure.ConcertName,
			Code:      codeFor(failure.Err).String(),
			Reason:    failure.Reason,
		})
	}
	return resp, nil
}

func (s *Server) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	if err := s.authorizeUser(ctx, req.Username); err != nil {
		return nil, err
	}

	lines, err := s.svc.Ledger.ListOrders(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	resp := &ListOrdersResponse{Orders: make([]Order, 0, len(lines))}
	for _, line := range lines {
		order := toOrder(line.Order)
		order.ItemName = line.ConcertName
		order.Price = money(line.ConcertPrice)
		order.Total = money(line.Total())
		resp.Orders = append(resp.Orders, *order)
	}
	return resp, nil
}

func (s *Server) GetOrderSummary(ctx context.Context, req *GetOrderSummaryRequest) (*OrderSummary, error) {
	if err := s.authorizeUser(ctx, req.Username); err != nil {
		return nil, err
	}

	summary, err := s.svc.Ledger.Summary(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	return &OrderSummary{
		UserID:       summary.UserID,
		TotalPrice:   money(summary.TotalPrice),
		PendingTotal: money(summary.PendingTotal),
		OrderCount:   int32(summary.OrderCount),
		Status:       string(summary.Status),
	}, nil
}

func (s *Server) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*Order, error) {
	if err := required("order_id", req.OrderID); err != nil {
		return nil, err
	}
	if err := s.authorizeOrder(ctx, req.OrderID); err != nil {
		return nil, err
	}

	order, err := s.svc.Ledger.Cancel(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	return toOrder(order), nil
}

func (s *Server) PayOrder(ctx context.Context, req *PayOrderRequest) (*PaymentReceipt, error) {
	if err := required("order_id", req.OrderID); err != nil {
		return nil, err
	}
	method, amount, err := parsePayment(req.PaymentMethod, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrder(ctx, req.OrderID); err != nil {
		return nil, err
	}

	receipt, err := s.svc.Payments.PayOrder(ctx, req.OrderID, method, amount)
	if err != nil {
		return nil, err
	}
	return toReceipt(receipt), nil
}

func (s *Server) PayUser(ctx context.Context, req *PayUserRequest) (*PaymentReceipt, error) {
	if err := required("username", req.Username); err != nil {
		return nil, err
	}
	method, amount, err := parsePayment(req.PaymentMethod, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeUser(ctx, req.Username); err != nil {
		return nil, err
	}

	receipt, err := s.svc.Payments.PayUser(ctx, req.Username, method, amount)
	if err != nil {
		return nil, err
	}
	return toReceipt(receipt), nil
}

func parsePayment(rawMethod, rawAmount string) (domain.PaymentMethod, decimal.Decimal, error) {
	method, err := domain.ParsePaymentMethod(rawMethod)
	if err != nil {
		return "", decimal.Zero, err
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("%w: amount %q is not a number", domain.ErrInvalidAmount, rawAmount)
	}
	return method, amount, nil
}

func toOrder(order domain.Order) *Order {
	out := &Order{
		ID:            order.ID,
		ConcertID:     order.ConcertID,
		Quantity:      int32(order.Quantity),
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		CreatedAt:     order.CreatedAt,
	}
	if order.PaymentAmount.Valid {
		out.PaymentAmount = money(order.PaymentAmount.Decimal)
	}
	return out
}

func toReceipt(receipt domain.Receipt) *PaymentReceipt {
	return &PaymentReceipt{
		OrderIDs:      receipt.OrderIDs,
		PaymentMethod: string(receipt.Method),
		Amount:        money(receipt.Amount),
		Total:         money(receipt.Total),
		Change:        money(receipt.Change()),
		PaidAt:        receipt.PaidAt,
	}
}

var _ TicketServiceServer = (*Server)(nil)
