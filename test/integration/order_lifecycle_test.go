package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/tickets/internal/auth"
	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/service/availability"
	"github.com/vladislavdragonenkov/tickets/internal/service/cart"
	"github.com/vladislavdragonenkov/tickets/internal/service/checkout"
	"github.com/vladislavdragonenkov/tickets/internal/service/events"
	"github.com/vladislavdragonenkov/tickets/internal/service/ledger"
	"github.com/vladislavdragonenkov/tickets/internal/service/outbox"
	"github.com/vladislavdragonenkov/tickets/internal/service/payment"
	"github.com/vladislavdragonenkov/tickets/internal/storage/memory"
	"github.com/vladislavdragonenkov/tickets/internal/transport/httpapi"
)

const jwtSecret = "integration-secret"

// capturePublisher запоминает опубликованные outbox-события.
type capturePublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *capturePublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return nil
}

func (p *capturePublisher) count(eventType domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, msg := range p.events {
		if msg.EventType == string(eventType) {
			n++
		}
	}
	return n
}

// OrderLifecycleTestSuite прогоняет путь корзина → заказы → оплата через HTTP API
// вместе с публикацией событий outbox worker'ом.
type OrderLifecycleTestSuite struct {
	suite.Suite

	catalog   *memory.Catalog
	outbox    *memory.OutboxRepository
	publisher *capturePublisher
	server    *httptest.Server
	stop      context.CancelFunc
	done      chan struct{}
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	state := memory.NewStore()
	s.catalog = memory.NewCatalog(state)
	s.catalog.PutUser(domain.User{Username: "alice", Role: domain.RoleUser})
	s.catalog.PutUser(domain.User{Username: "bob", Role: domain.RoleUser})
	s.catalog.PutConcert(domain.Concert{Name: "A", Price: decimal.NewFromInt(100), Date: time.Now().AddDate(0, 1, 0), Available: true})
	s.catalog.PutConcert(domain.Concert{Name: "B", Price: decimal.NewFromInt(50), Date: time.Now().AddDate(0, 2, 0), Available: true})

	s.outbox = memory.NewOutboxRepository()
	recorder := events.NewRecorder(s.outbox, logger)

	cartRepo := memory.NewCartRepository(state)
	orderRepo := memory.NewOrderRepository(state)
	orderLedger := ledger.New(s.catalog, orderRepo, ledger.WithLogger(logger), ledger.WithRecorder(recorder))

	api := httpapi.New(httpapi.Services{
		Concerts: s.catalog,
		Cart:     cart.NewStore(s.catalog, s.catalog, cartRepo, cart.WithLogger(logger), cart.WithRecorder(recorder)),
		Checkout: checkout.NewCoordinator(s.catalog, cartRepo, orderRepo, availability.NewGuard(s.catalog), orderLedger,
			checkout.WithLogger(logger), checkout.WithRecorder(recorder)),
		Ledger: orderLedger,
		Payments: payment.NewProcessor(s.catalog, s.catalog, orderRepo, memory.NewPaymentRepository(state),
			payment.WithLogger(logger), payment.WithRecorder(recorder)),
	}, httpapi.WithLogger(logger), httpapi.WithVerifier(auth.NewVerifier(jwtSecret)))
	s.server = httptest.NewServer(api.Handler())

	s.publisher = &capturePublisher{}
	worker := outbox.NewWorker(s.outbox, s.publisher,
		outbox.WithLogger(logger),
		outbox.WithPollInterval(10*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		worker.Run(ctx)
	}()
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	s.stop()
	<-s.done
	s.server.Close()
}

func (s *OrderLifecycleTestSuite) token(username string) string {
	token, err := auth.SignToken(jwtSecret, username, domain.RoleUser, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *OrderLifecycleTestSuite) call(method, path, token string, body any, out any) int {
	var payload bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &payload)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *OrderLifecycleTestSuite) addToCart(username, item string, quantity int) int {
	return s.call(http.MethodPost, "/cart/add", s.token(username), map[string]any{
		"username":  username,
		"item_name": item,
		"quantity":  quantity,
	}, nil)
}

type summary struct {
	TotalPrice   string `json:"total_price"`
	PendingTotal string `json:"pending_total"`
	OrderCount   int    `json:"order_count"`
	Status       string `json:"status"`
}

func (s *OrderLifecycleTestSuite) summary(username string) summary {
	var out summary
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/orders/"+username, s.token(username), nil, &out))
	return out
}

func (s *OrderLifecycleTestSuite) TestSuccessfulOrderLifecycle() {
	s.Require().Equal(http.StatusCreated, s.addToCart("alice", "A", 2))
	s.Require().Equal(http.StatusCreated, s.addToCart("alice", "B", 1))

	var cartItems []map[string]any
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/cart/alice", s.token("alice"), nil, &cartItems))
	s.Require().Len(cartItems, 2)

	var checkoutResp struct {
		CreatedOrderIDs []string         `json:"created_order_ids"`
		Failures        []map[string]any `json:"failures"`
	}
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/checkout/alice", s.token("alice"), nil, &checkoutResp))
	s.Require().Len(checkoutResp.CreatedOrderIDs, 2)
	s.Require().Empty(checkoutResp.Failures)

	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/cart/alice", s.token("alice"), nil, &cartItems))
	s.Require().Empty(cartItems)

	pending := s.summary("alice")
	s.Equal("250.00", pending.TotalPrice)
	s.Equal("250.00", pending.PendingTotal)
	s.Equal(2, pending.OrderCount)
	s.Equal(string(domain.AggregateStatusPending), pending.Status)

	var payResp struct {
		OrderIDs []string `json:"order_ids"`
		Change   string   `json:"change"`
	}
	status := s.call(http.MethodPost, "/pay_order/alice", s.token("alice"), map[string]any{
		"payment_method": "credit_card",
		"amount":         "260",
	}, &payResp)
	s.Require().Equal(http.StatusOK, status)
	s.Len(payResp.OrderIDs, 2)
	s.Equal("10.00", payResp.Change)

	paid := s.summary("alice")
	s.Equal(string(domain.AggregateStatusPaid), paid.Status)
	s.Equal("0.00", paid.PendingTotal)

	s.Require().Equal(http.StatusConflict,
		s.call(http.MethodPost, "/cancel_order/"+checkoutResp.CreatedOrderIDs[0], s.token("alice"), nil, nil))

	s.Require().Eventually(func() bool {
		return s.publisher.count(domain.EventOrderPaid) == 2 &&
			s.publisher.count(domain.EventOrderCreated) == 2 &&
			s.publisher.count(domain.EventCartItemAdded) == 2 &&
			s.publisher.count(domain.EventCheckoutCompleted) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *OrderLifecycleTestSuite) TestCancelledOrderIsNotCharged() {
	s.Require().Equal(http.StatusCreated, s.addToCart("alice", "A", 1))
	s.Require().Equal(http.StatusCreated, s.addToCart("alice", "B", 2))

	var checkoutResp struct {
		CreatedOrderIDs []string `json:"created_order_ids"`
	}
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/checkout/alice", s.token("alice"), nil, &checkoutResp))
	s.Require().Len(checkoutResp.CreatedOrderIDs, 2)

	var cancelled struct {
		Status string `json:"status"`
	}
	s.Require().Equal(http.StatusOK,
		s.call(http.MethodPost, "/cancel_order/"+checkoutResp.CreatedOrderIDs[0], s.token("alice"), nil, &cancelled))
	s.Equal(string(domain.OrderStatusCancelled), cancelled.Status)

	remaining := s.summary("alice")
	s.Equal("200.00", remaining.TotalPrice)
	s.Equal("100.00", remaining.PendingTotal)

	s.Require().Equal(http.StatusUnprocessableEntity, s.call(http.MethodPost, "/pay_order/alice", s.token("alice"), map[string]any{
		"payment_method": "paypal",
		"amount":         "99.99",
	}, nil))
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/pay_order/alice", s.token("alice"), map[string]any{
		"payment_method": "paypal",
		"amount":         "100",
	}, nil))

	s.Equal(string(domain.AggregateStatusPaid), s.summary("alice").Status)
	s.Require().Equal(http.StatusNotFound, s.call(http.MethodPost, "/pay_order/alice", s.token("alice"), map[string]any{
		"payment_method": "cash",
		"amount":         "100",
	}, nil))
}

func (s *OrderLifecycleTestSuite) TestPartialCheckoutKeepsUnavailableItem() {
	s.Require().Equal(http.StatusCreated, s.addToCart("bob", "A", 1))
	s.Require().Equal(http.StatusCreated, s.addToCart("bob", "B", 1))

	b, err := s.catalog.ConcertByName(context.Background(), "B")
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.SetAvailable(b.ID, false))

	var checkoutResp struct {
		CreatedOrderIDs []string `json:"created_order_ids"`
		Failures        []struct {
			ItemName string `json:"item_name"`
		} `json:"failures"`
	}
	s.Require().Equal(http.StatusOK, s.call(http.MethodPost, "/checkout/bob", s.token("bob"), nil, &checkoutResp))
	s.Require().Len(checkoutResp.CreatedOrderIDs, 1)
	s.Require().Len(checkoutResp.Failures, 1)
	s.Equal("B", checkoutResp.Failures[0].ItemName)

	var cartItems []struct {
		ItemName string `json:"item_name"`
	}
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/cart/bob", s.token("bob"), nil, &cartItems))
	s.Require().Len(cartItems, 1)
	s.Equal("B", cartItems[0].ItemName)
}

func (s *OrderLifecycleTestSuite) TestForeignUserIsRejected() {
	s.Require().Equal(http.StatusForbidden, s.call(http.MethodPost, "/cart/add", s.token("bob"), map[string]any{
		"username":  "alice",
		"item_name": "A",
		"quantity":  1,
	}, nil))
	s.Require().Equal(http.StatusUnauthorized, s.call(http.MethodGet, "/orders/alice", "", nil, nil))
}

func (s *OrderLifecycleTestSuite) TestConcurrentAddCreatesSingleEntry() {
	const workers = 16
	token := s.token("alice")

	var wg sync.WaitGroup
	statuses := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{"username": "alice", "item_name": "A", "quantity": 1})
			req, err := http.NewRequest(http.MethodPost, s.server.URL+"/cart/add", bytes.NewReader(body))
			if err != nil {
				statuses <- 0
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := s.server.Client().Do(req)
			if err != nil {
				statuses <- 0
				return
			}
			_ = resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	created, conflicts := 0, 0
	for status := range statuses {
		switch status {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		}
	}
	s.Equal(1, created)
	s.Equal(workers-1, conflicts)

	var cartItems []map[string]any
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/cart/alice", token, nil, &cartItems))
	s.Len(cartItems, 1)
}

func (s *OrderLifecycleTestSuite) TestEmptyCartCheckout() {
	var body map[string]string
	s.Require().Equal(http.StatusConflict, s.call(http.MethodPost, "/checkout/alice", s.token("alice"), nil, &body))
	s.Equal("empty_cart", body["error"])
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}

func TestCapturePublisherCountsByType(t *testing.T) {
	p := &capturePublisher{}
	require.NoError(t, p.Publish(context.Background(), domain.OutboxMessage{EventType: string(domain.EventOrderPaid)}))
	require.Equal(t, 1, p.count(domain.EventOrderPaid))
	require.Zero(t, p.count(domain.EventOrderCreated))
}
