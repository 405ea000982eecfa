package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
)

const defaultPaymentsLimit = 100

type concertResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Address     string    `json:"address"`
	Price       string    `json:"price"`
	Date        time.Time `json:"date"`
	MaxQuantity int       `json:"max_quantity"`
}

type addToCartRequest struct {
	Username string `json:"username"`
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

type cartEntryResponse struct {
	ID        string    `json:"id"`
	ConcertID string    `json:"concert_id"`
	ItemName  string    `json:"item_name,omitempty"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price,omitempty"`
	Subtotal  string    `json:"subtotal,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type checkoutFailure struct {
	ConcertID string `json:"concert_id"`
	ItemName  string `json:"item_name"`
	Error     string `json:"error"`
	Reason    string `json:"reason"`
}

type checkoutResponse struct {
	Message         string            `json:"message"`
	CreatedOrderIDs []string          `json:"created_order_ids"`
	Failures        []checkoutFailure `json:"failures"`
}

type summaryResponse struct {
	UserID       string `json:"user_id"`
	TotalPrice   string `json:"total_price"`
	PendingTotal string `json:"pending_total"`
	OrderCount   int    `json:"order_count"`
	Status       string `json:"status"`
}

type orderResponse struct {
	OrderID       string    `json:"order_id"`
	ConcertID     string    `json:"concert_id"`
	ItemName      string    `json:"item_name,omitempty"`
	Quantity      int       `json:"quantity"`
	Price         string    `json:"price,omitempty"`
	Total         string    `json:"total,omitempty"`
	Date          time.Time `json:"date"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	PaymentAmount string    `json:"payment_amount,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type payRequest struct {
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
}

type payResponse struct {
	Message       string   `json:"message"`
	OrderIDs      []string `json:"order_ids"`
	PaymentMethod string   `json:"payment_method"`
	Amount        string   `json:"amount"`
	Total         string   `json:"total"`
	Change        string   `json:"change"`
}

type paymentResponse struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	PaymentMethod string    `json:"payment_method"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

func (s *Server) listConcerts(c echo.Context) error {
	concerts, err := s.svc.Concerts.ListAvailable(c.Request().Context())
	if err != nil {
		return err
	}

	maxQuantity := s.svc.Cart.MaxQuantity()
	resp := make([]concertResponse, 0, len(concerts))
	for _, concert := range concerts {
		resp = append(resp, concertResponse{
			ID:          concert.ID,
			Name:        concert.Name,
			Description: concert.Description,
			Address:     concert.Address,
			Price:       money(concert.Price),
			Date:        concert.Date,
			MaxQuantity: maxQuantity,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) addToCart(c echo.Context) error {
	var req addToCartRequest
	if err := c.Bind(&req); err != nil {
		return validationError("invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	req.ItemName = strings.TrimSpace(req.ItemName)
	if req.Username == "" || req.ItemName == "" {
		return validationError("username and item_name are required")
	}
	if err := s.authorizeUser(c, req.Username); err != nil {
		return err
	}

	entry, err := s.svc.Cart.Add(c.Request().Context(), req.Username, req.ItemName, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cartEntryResponse{
		ID:        entry.ID,
		ConcertID: entry.ConcertID,
		ItemName:  req.ItemName,
		Quantity:  entry.Quantity,
		CreatedAt: entry.CreatedAt,
	})
}

func (s *Server) listCart(c echo.Context) error {
	username := c.Param("username")
	if err := s.authorizeUser(c, username); err != nil {
		return err
	}

	items, err := s.svc.Cart.List(c.Request().Context(), username)
	if err != nil {
		return err
	}

	resp := make([]cartEntryResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, cartEntryResponse{
			ID:        item.ID,
			ConcertID: item.ConcertID,
			ItemName:  item.ConcertName,
			Quantity:  item.Quantity,
			Price:     money(item.Price),
			Subtotal:  money(item.Subtotal()),
			CreatedAt: item.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) removeFromCart(c echo.Context) error {
	username := strings.TrimSpace(c.QueryParam("username"))
	itemName := strings.TrimSpace(c.QueryParam("item_name"))
	if username == "" || itemName == "" {
		return validationError("username and item_name query parameters are required")
	}
	if err := s.authorizeUser(c, username); err != nil {
		return err
	}

	entry, err := s.svc.Cart.Remove(c.Request().Context(), username, itemName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cartEntryResponse{
		ID:        entry.ID,
		ConcertID: entry.ConcertID,
		ItemName:  itemName,
		Quantity:  entry.Quantity,
		CreatedAt: entry.CreatedAt,
	})
}

func (s *Server) checkout(c echo.Context) error {
	username := c.Param("username")
	if err := s.authorizeUser(c, username); err != nil {
		return err
	}

	result, err := s.svc.Checkout.Checkout(c.Request().Context(), username)
	if err != nil {
		return err
	}

	resp := checkoutResponse{
		Message:         fmt.Sprintf("%d order(s) created", len(result.CreatedOrderIDs)),
		CreatedOrderIDs: result.CreatedOrderIDs,
		Failures:        make([]checkoutFailure, 0, len(result.Failures)),
	}
	for _, failure := range result.Failures {
		resp.Failures = append(resp.Failures, checkoutFailure{
			ConcertID: failure.ConcertID,
			ItemName:  failure.ConcertName,
			Error:     errorKind(failure.Err),
			Reason:    failure.Reason,
		})
	}

	status := http.StatusOK
	if len(result.CreatedOrderIDs) == 0 {
		resp.Message = "no orders created"
		status = http.StatusConflict
	}
	return c.JSON(status, resp)
}

func (s *Server) orderSummary(c echo.Context) error {
	username := c.Param("username")
	if err := s.authorizeUser(c, username); err != nil {
		return err
	}

	summary, err := s.svc.Ledger.Summary(c.Request().Context(), username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summaryResponse{
		UserID:       summary.UserID,
		TotalPrice:   money(summary.TotalPrice),
		PendingTotal: money(summary.PendingTotal),
		OrderCount:   summary.OrderCount,
		Status:       string(summary.Status),
	})
}

func (s *Server) orderLines(c echo.Context) error {
	username := c.Param("username")
	if err := s.authorizeUser(c, username); err != nil {
		return err
	}

	lines, err := s.svc.Ledger.ListOrders(c.Request().Context(), username)
	if err != nil {
		return err
	}

	resp := make([]orderResponse, 0, len(lines))
	for _, line := range lines {
		item := newOrderResponse(line.Order)
		item.ItemName = line.ConcertName
		item.Price = money(line.ConcertPrice)
		item.Total = money(line.Total())
		item.Date = line.ConcertDate
		resp = append(resp, item)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) cancelOrder(c echo.Context) error {
	orderID := c.Param("order_id")
	if err := s.authorizeOrder(c, orderID); err != nil {
		return err
	}

	order, err := s.svc.Ledger.Cancel(c.Request().Context(), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newOrderResponse(order))
}

// payOrder оплачивает все pending-заказы пользователя target,
// а с ?scope=order — один заказ с идентификатором target.
func (s *Server) payOrder(c echo.Context) error {
	target := c.Param("target")
	var req payRequest
	if err := c.Bind(&req); err != nil {
		return validationError("invalid request body")
	}
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var receipt domain.Receipt
	switch scope := c.QueryParam("scope"); scope {
	case "order":
		if err := s.authorizeOrder(c, target); err != nil {
			return err
		}
		receipt, err = s.svc.Payments.PayOrder(ctx, target, method, req.Amount)
	case "", "user":
		if err := s.authorizeUser(c, target); err != nil {
			return err
		}
		receipt, err = s.svc.Payments.PayUser(ctx, target, method, req.Amount)
	default:
		return validationError("unknown scope %q", scope)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, payResponse{
		Message:       "payment accepted",
		OrderIDs:      receipt.OrderIDs,
		PaymentMethod: string(receipt.Method),
		Amount:        money(receipt.Amount),
		Total:         money(receipt.Total),
		Change:        money(receipt.Change()),
	})
}

func (s *Server) listPayments(c echo.Context) error {
	limit := defaultPaymentsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return validationError("limit must be a positive integer")
		}
		limit = parsed
	}

	attempts, err := s.svc.Payments.ListPayments(c.Request().Context(), limit)
	if err != nil {
		return err
	}

	resp := make([]paymentResponse, 0, len(attempts))
	for _, attempt := range attempts {
		resp = append(resp, paymentResponse{
			ID:            attempt.ID,
			OrderID:       attempt.OrderID,
			UserID:        attempt.UserID,
			PaymentMethod: string(attempt.Method),
			Amount:        money(attempt.Amount),
			Status:        string(attempt.Status),
			CreatedAt:     attempt.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func newOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:       order.ID,
		ConcertID:     order.ConcertID,
		Quantity:      order.Quantity,
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		CreatedAt:     order.CreatedAt,
	}
	if order.PaymentAmount.Valid {
		resp.PaymentAmount = money(order.PaymentAmount.Decimal)
	}
	return resp
}
