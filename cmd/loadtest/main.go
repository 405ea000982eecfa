package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/tickets/internal/transport/grpcapi"
)

type loadMode string

const (
	// modeCartContention: fanout одновременных AddToCart на одну пару (user, concert),
	// ровно один должен пройти, остальные получить AlreadyExists.
	modeCartContention loadMode = "cart-contention"
	// modeCheckoutPay: корзина, оформление и оплата всех pending-заказов пользователя.
	modeCheckoutPay loadMode = "checkout-pay"
)

type config struct {
	addr          string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	connections   int
	timeout       time.Duration
	mode          loadMode
	fanout        int
	users         []string
	concert       string
	quantity      int
	paymentMethod string
	token         string
	outputPath    string
}

// ticketClient: методы TicketService, которые использует нагрузочный тест.
type ticketClient interface {
	AddToCart(ctx context.Context, in *grpcapi.AddToCartRequest, opts ...grpc.CallOption) (*grpcapi.CartEntry, error)
	RemoveFromCart(ctx context.Context, in *grpcapi.RemoveFromCartRequest, opts ...grpc.CallOption) (*grpcapi.CartEntry, error)
	Checkout(ctx context.Context, in *grpcapi.CheckoutRequest, opts ...grpc.CallOption) (*grpcapi.CheckoutResponse, error)
	GetOrderSummary(ctx context.Context, in *grpcapi.GetOrderSummaryRequest, opts ...grpc.CallOption) (*grpcapi.OrderSummary, error)
	PayUser(ctx context.Context, in *grpcapi.PayUserRequest, opts ...grpc.CallOption) (*grpcapi.PaymentReceipt, error)
}

var _ ticketClient = (*grpcapi.Client)(nil)

func parseConfig() (config, error) {
	var cfg config
	var (
		modeValue     string
		timeoutValue  string
		durationValue string
		usersValue    string
	)

	flag.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 2, "number of concurrent workers, each owns one user")
	flag.IntVar(&cfg.connections, "connections", 2, "number of gRPC client connections")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-RPC timeout")
	flag.StringVar(&modeValue, "mode", string(modeCheckoutPay), "load mode: cart-contention | checkout-pay")
	flag.IntVar(&cfg.fanout, "fanout", 8, "concurrent AddToCart calls per scenario in cart-contention mode")
	flag.StringVar(&usersValue, "users", "alice,bob", "comma-separated usernames known to the catalog")
	flag.StringVar(&cfg.concert, "concert", "Rock Night", "concert name to put into the cart")
	flag.IntVar(&cfg.quantity, "quantity", 1, "tickets per cart entry")
	flag.StringVar(&cfg.paymentMethod, "payment-method", "credit_card", "payment method: credit_card | paypal | cash")
	flag.StringVar(&cfg.token, "token", "", "optional bearer token")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.users = splitList(usersValue)

	return cfg, validateConfig(cfg)
}

func validateConfig(cfg config) error {
	switch {
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case len(cfg.users) == 0:
		return errors.New("users are required")
	case cfg.concurrency > len(cfg.users):
		return fmt.Errorf("concurrency %d exceeds number of users %d", cfg.concurrency, len(cfg.users))
	case strings.TrimSpace(cfg.concert) == "":
		return errors.New("concert is required")
	case cfg.quantity < 1 || cfg.quantity > 10:
		return errors.New("quantity must be between 1 and 10")
	case cfg.mode == modeCartContention && cfg.fanout < 2:
		return errors.New("fanout must be >= 2 in cart-contention mode")
	}
	switch cfg.paymentMethod {
	case "credit_card", "paypal", "cash":
	default:
		return fmt.Errorf("unsupported payment method: %s", cfg.paymentMethod)
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCartContention:
		return modeCartContention, nil
	case modeCheckoutPay:
		return modeCheckoutPay, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func splitList(raw string) []string {
	var result []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]ticketClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcapi.NewClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	startedAt := time.Now()
	col := newCollector()
	runLoad(clients, cfg, col)

	result := col.buildReport(cfg.mode, startedAt, time.Since(startedAt))
	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || result.InvariantViolation > 0 {
		os.Exit(1)
	}
}

// runLoad раздаёт сценарии воркерам. Каждый воркер работает со своим пользователем,
// чтобы сценарии разных воркеров не пересекались по корзине.
func runLoad(clients []ticketClient, cfg config, col *collector) {
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		r := &runner{
			client: clients[workerID%len(clients)],
			cfg:    cfg,
			col:    col,
			user:   cfg.users[workerID],
		}
		if cfg.token != "" {
			r.opts = append(r.opts, grpcapi.BearerCredentials(cfg.token))
		}
		go func() {
			defer wg.Done()
			r.resetCart()
			for id := range jobs {
				_ = r.runScenario(id)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type runner struct {
	client ticketClient
	cfg    config
	col    *collector
	user   string
	opts   []grpc.CallOption
}

func (r *runner) runScenario(index int) (err error) {
	started := time.Now()
	defer func() {
		r.col.record(scenarioMethod, time.Since(started), grpcCode(err))
	}()

	switch r.cfg.mode {
	case modeCartContention:
		return r.cartContention()
	case modeCheckoutPay:
		return r.checkoutPay()
	default:
		return status.Errorf(codes.InvalidArgument, "scenario %d: unsupported mode %s", index, r.cfg.mode)
	}
}

func (r *runner) cartContention() error {
	results := make([]codes.Code, r.cfg.fanout)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.addToCart()
			results[i] = grpcCode(err)
		}(i)
	}
	wg.Wait()

	var created, duplicates int
	for _, code := range results {
		switch code {
		case codes.OK:
			created++
		case codes.AlreadyExists:
			duplicates++
		}
	}
	if created != 1 || duplicates != len(results)-1 {
		r.col.recordViolation()
		return status.Errorf(codes.Aborted, "cart contention: created=%d duplicates=%d of %d", created, duplicates, len(results))
	}

	_, err := r.removeFromCart()
	return err
}

func (r *runner) checkoutPay() error {
	if _, err := r.addToCart(); err != nil {
		return err
	}

	result, err := r.checkout()
	if err != nil {
		return err
	}
	if len(result.CreatedOrderIDs) == 0 || len(result.Failures) > 0 {
		return status.Errorf(codes.FailedPrecondition, "checkout created %d orders with %d failures",
			len(result.CreatedOrderIDs), len(result.Failures))
	}

	summary, err := r.orderSummary()
	if err != nil {
		return err
	}

	_, err = r.payUser(summary.PendingTotal)
	return err
}

// resetCart убирает позицию, оставшуюся от прошлых прогонов.
func (r *runner) resetCart() {
	if _, err := r.removeFromCart(); err != nil && grpcCode(err) != codes.NotFound {
		_, _ = fmt.Fprintf(os.Stderr, "reset cart for %s: %v\n", r.user, err)
	}
}

func (r *runner) addToCart() (*grpcapi.CartEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.timeout)
	defer cancel()

	start := time.Now()
	entry, err := r.client.AddToCart(ctx, &grpcapi.AddToCartRequest{
		Username: r.user,
		ItemName: r.cfg.concert,
		Quantity: int32(r.cfg.quantity),
	}, r.opts...)
	var expected []codes.Code
	if r.cfg.mode == modeCartContention {
		expected = append(expected, codes.AlreadyExists)
	}
	r.col.record("AddToCart", time.Since(start), grpcCode(err), expected...)
	return entry, err
}

func (r *runner) removeFromCart() (*grpcapi.CartEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.timeout)
	defer cancel()

	start := time.Now()
	entry, err := r.client.RemoveFromCart(ctx, &grpcapi.RemoveFromCartRequest{
		Username: r.user,
		ItemName: r.cfg.concert,
	}, r.opts...)
	r.col.record("RemoveFromCart", time.Since(start), grpcCode(err), codes.NotFound)
	return entry, err
}

func (r *runner) checkout() (*grpcapi.CheckoutResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.client.Checkout(ctx, &grpcapi.CheckoutRequest{Username: r.user}, r.opts...)
	r.col.record("Checkout", time.Since(start), grpcCode(err))
	return resp, err
}

func (r *runner) orderSummary() (*grpcapi.OrderSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.timeout)
	defer cancel()

	start := time.Now()
	resp, err := r.client.GetOrderSummary(ctx, &grpcapi.GetOrderSummaryRequest{Username: r.user}, r.opts...)
	r.col.record("GetOrderSummary", time.Since(start), grpcCode(err))
	return resp, err
}

func (r *runner) payUser(amount string) (*grpcapi.PaymentReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.timeout)
	defer cancel()

	start := time.Now()
	receipt, err := r.client.PayUser(ctx, &grpcapi.PayUserRequest{
		Username:      r.user,
		PaymentMethod: r.cfg.paymentMethod,
		Amount:        amount,
	}, r.opts...)
	r.col.record("PayUser", time.Since(start), grpcCode(err))
	return receipt, err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
