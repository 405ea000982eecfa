// Package httpapi публикует операции корзины, заказов и оплат через echo.
package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/auth"
	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/service/cart"
	"github.com/vladislavdragonenkov/tickets/internal/service/checkout"
	"github.com/vladislavdragonenkov/tickets/internal/service/ledger"
	"github.com/vladislavdragonenkov/tickets/internal/service/payment"
)

// Services: прикладные сервисы, которые обслуживает HTTP API.
type Services struct {
	Concerts domain.ConcertCatalog
	Cart     *cart.Store
	Checkout *checkout.Coordinator
	Ledger   *ledger.Ledger
	Payments *payment.Processor
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт logger для access-лога и ошибок.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVerifier включает проверку bearer-токенов. nil оставляет API открытым.
func WithVerifier(verifier *auth.Verifier) Option {
	return func(s *Server) {
		s.verifier = verifier
	}
}

// WithRateLimiter включает token bucket на изменяющих маршрутах.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// Server: echo-приложение с маршрутами сервиса.
type Server struct {
	svc      Services
	verifier *auth.Verifier
	limiter  *RateLimiter
	logger   *log.Entry
	echo     *echo.Echo
}

// New собирает маршруты.
func New(svc Services, opts ...Option) *Server {
	s := &Server{svc: svc}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "http-api")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.accessLog)

	e.GET("/concerts", s.listConcerts)

	limited := s.limiter.Middleware()

	e.POST("/cart/add", s.addToCart, s.authenticate, limited)
	e.GET("/cart/:username", s.listCart, s.authenticate)
	e.DELETE("/cart/remove", s.removeFromCart, s.authenticate, limited)
	e.POST("/checkout/:username", s.checkout, s.authenticate, limited)
	e.GET("/orders/:username", s.orderSummary, s.authenticate)
	e.GET("/orders1/:username", s.orderLines, s.authenticate)
	e.POST("/cancel_order/:order_id", s.cancelOrder, s.authenticate, limited)
	e.POST("/pay_order/:target", s.payOrder, s.authenticate, limited)

	if s.verifier != nil {
		e.GET("/admin/payments", s.listPayments, s.authenticate, s.requireAdmin)
	}

	s.echo = e
	return s
}

// Handler возвращает http.Handler для http.Server.
func (s *Server) Handler() http.Handler {
	return s.echo
}
