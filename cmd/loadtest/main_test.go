package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/tickets/internal/transport/grpcapi"
)

type fakeTicketClient struct {
	addFn      func(context.Context, *grpcapi.AddToCartRequest) (*grpcapi.CartEntry, error)
	removeFn   func(context.Context, *grpcapi.RemoveFromCartRequest) (*grpcapi.CartEntry, error)
	checkoutFn func(context.Context, *grpcapi.CheckoutRequest) (*grpcapi.CheckoutResponse, error)
	summaryFn  func(context.Context, *grpcapi.GetOrderSummaryRequest) (*grpcapi.OrderSummary, error)
	payFn      func(context.Context, *grpcapi.PayUserRequest) (*grpcapi.PaymentReceipt, error)
}

func (f *fakeTicketClient) AddToCart(ctx context.Context, in *grpcapi.AddToCartRequest, _ ...grpc.CallOption) (*grpcapi.CartEntry, error) {
	if f.addFn == nil {
		return nil, errors.New("unexpected AddToCart call")
	}
	return f.addFn(ctx, in)
}

func (f *fakeTicketClient) RemoveFromCart(ctx context.Context, in *grpcapi.RemoveFromCartRequest, _ ...grpc.CallOption) (*grpcapi.CartEntry, error) {
	if f.removeFn == nil {
		return nil, errors.New("unexpected RemoveFromCart call")
	}
	return f.removeFn(ctx, in)
}

func (f *fakeTicketClient) Checkout(ctx context.Context, in *grpcapi.CheckoutRequest, _ ...grpc.CallOption) (*grpcapi.CheckoutResponse, error) {
	if f.checkoutFn == nil {
		return nil, errors.New("unexpected Checkout call")
	}
	return f.checkoutFn(ctx, in)
}

func (f *fakeTicketClient) GetOrderSummary(ctx context.Context, in *grpcapi.GetOrderSummaryRequest, _ ...grpc.CallOption) (*grpcapi.OrderSummary, error) {
	if f.summaryFn == nil {
		return nil, errors.New("unexpected GetOrderSummary call")
	}
	return f.summaryFn(ctx, in)
}

func (f *fakeTicketClient) PayUser(ctx context.Context, in *grpcapi.PayUserRequest, _ ...grpc.CallOption) (*grpcapi.PaymentReceipt, error) {
	if f.payFn == nil {
		return nil, errors.New("unexpected PayUser call")
	}
	return f.payFn(ctx, in)
}

// singleWinnerCart ведёт себя как сервер: первая вставка проходит, остальные AlreadyExists.
func singleWinnerCart() *fakeTicketClient {
	var occupied atomic.Bool
	return &fakeTicketClient{
		addFn: func(context.Context, *grpcapi.AddToCartRequest) (*grpcapi.CartEntry, error) {
			if !occupied.CompareAndSwap(false, true) {
				return nil, status.Error(codes.AlreadyExists, "cart entry already exists")
			}
			return &grpcapi.CartEntry{ID: "entry-1"}, nil
		},
		removeFn: func(context.Context, *grpcapi.RemoveFromCartRequest) (*grpcapi.CartEntry, error) {
			if !occupied.CompareAndSwap(true, false) {
				return nil, status.Error(codes.NotFound, "cart entry not found")
			}
			return &grpcapi.CartEntry{ID: "entry-1"}, nil
		},
	}
}

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func validTestConfig() config {
	return config{
		total:         4,
		concurrency:   2,
		connections:   1,
		timeout:       time.Second,
		mode:          modeCheckoutPay,
		fanout:        4,
		users:         []string{"alice", "bob"},
		concert:       "Rock Night",
		quantity:      1,
		paymentMethod: "credit_card",
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    loadMode
		wantErr bool
	}{
		{input: "cart-contention", want: modeCartContention},
		{input: " checkout-pay ", want: modeCheckoutPay},
		{input: "create", wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseMode(tc.input)
		if tc.wantErr {
			if err == nil || !strings.Contains(err.Error(), "unsupported mode") {
				t.Fatalf("%q: expected unsupported mode error, got %v", tc.input, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v", tc.input, got, err)
		}
	}
}

func TestParseConfig(t *testing.T) {
	withCLIArgs(t, []string{
		"-addr=127.0.0.1:50051",
		"-mode=cart-contention",
		"-total=12",
		"-concurrency=3",
		"-users=alice, bob ,carol",
		"-fanout=16",
		"-timeout=2s",
		"-token=abc",
	}, func() {
		cfg, err := parseConfig()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.mode != modeCartContention || cfg.total != 12 || !cfg.totalSet {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if len(cfg.users) != 3 || cfg.users[1] != "bob" {
			t.Fatalf("unexpected users: %v", cfg.users)
		}
		if cfg.fanout != 16 || cfg.timeout != 2*time.Second || cfg.token != "abc" {
			t.Fatalf("unexpected config: %+v", cfg)
		}
	})

	withCLIArgs(t, []string{"-timeout=bad"}, func() {
		if _, err := parseConfig(); err == nil || !strings.Contains(err.Error(), "parse timeout") {
			t.Fatalf("expected timeout parse error, got %v", err)
		}
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config)
		wantErr string
	}{
		{name: "valid", mutate: func(*config) {}},
		{name: "negative duration", mutate: func(c *config) { c.duration = -time.Second }, wantErr: "duration"},
		{name: "zero total", mutate: func(c *config) { c.total = 0 }, wantErr: "total"},
		{name: "zero connections", mutate: func(c *config) { c.connections = 0 }, wantErr: "connections"},
		{name: "more workers than users", mutate: func(c *config) { c.concurrency = 3 }, wantErr: "exceeds number of users"},
		{name: "quantity too large", mutate: func(c *config) { c.quantity = 11 }, wantErr: "quantity"},
		{name: "fanout too small", mutate: func(c *config) { c.mode = modeCartContention; c.fanout = 1 }, wantErr: "fanout"},
		{name: "unknown payment", mutate: func(c *config) { c.paymentMethod = "bitcoin" }, wantErr: "payment method"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := validateConfig(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(jobs, config{total: 3})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 3 || got[2] != 2 {
		t.Fatalf("unexpected jobs: %v", got)
	}

	limited := make(chan int, 10)
	dispatchJobs(limited, config{duration: time.Second, total: 5, totalSet: true})
	count := 0
	for range limited {
		count++
	}
	if count != 5 {
		t.Fatalf("expected 5 jobs with max-total, got %d", count)
	}
}

func TestCollectorTreatsExpectedCodesAsNeutral(t *testing.T) {
	col := newCollector()
	col.record("AddToCart", time.Millisecond, codes.OK)
	col.record("AddToCart", time.Millisecond, codes.AlreadyExists, codes.AlreadyExists)
	col.record("AddToCart", time.Millisecond, codes.Internal, codes.AlreadyExists)

	snapshot, ok := col.snapshot("AddToCart")
	if !ok {
		t.Fatal("expected AddToCart stats")
	}
	if snapshot.Calls != 3 || snapshot.Success != 1 || snapshot.Failed != 1 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.Codes[codes.AlreadyExists.String()] != 1 {
		t.Fatalf("unexpected codes: %v", snapshot.Codes)
	}
	if _, ok := col.snapshot("missing"); ok {
		t.Fatal("unexpected stats for unknown method")
	}
}

func TestRunScenario_CartContention(t *testing.T) {
	cfg := validTestConfig()
	cfg.mode = modeCartContention
	cfg.fanout = 16
	col := newCollector()
	r := &runner{client: singleWinnerCart(), cfg: cfg, col: col, user: "alice"}

	for i := 0; i < 5; i++ {
		if err := r.runScenario(i); err != nil {
			t.Fatalf("scenario %d failed: %v", i, err)
		}
	}

	result := col.buildReport(cfg.mode, time.Now(), time.Second)
	if result.SuccessScenarios != 5 || result.InvariantViolation != 0 {
		t.Fatalf("unexpected report: %+v", result)
	}
	add := result.Methods["AddToCart"]
	if add.Success != 5 || add.Failed != 0 || add.Codes[codes.AlreadyExists.String()] != 75 {
		t.Fatalf("unexpected AddToCart stats: %+v", add)
	}
}

func TestRunScenario_CartContentionDetectsDoubleInsert(t *testing.T) {
	cfg := validTestConfig()
	cfg.mode = modeCartContention
	col := newCollector()
	client := &fakeTicketClient{
		addFn: func(context.Context, *grpcapi.AddToCartRequest) (*grpcapi.CartEntry, error) {
			return &grpcapi.CartEntry{ID: "dup"}, nil
		},
	}
	r := &runner{client: client, cfg: cfg, col: col, user: "alice"}

	err := r.runScenario(0)
	if status.Code(err) != codes.Aborted {
		t.Fatalf("expected Aborted, got %v", err)
	}
	result := col.buildReport(cfg.mode, time.Now(), time.Second)
	if result.InvariantViolation != 1 || result.FailedScenarios != 1 {
		t.Fatalf("unexpected report: %+v", result)
	}
}

func TestRunScenario_CheckoutPay(t *testing.T) {
	cfg := validTestConfig()
	col := newCollector()
	var paidAmount string
	client := &fakeTicketClient{
		addFn: func(_ context.Context, in *grpcapi.AddToCartRequest) (*grpcapi.CartEntry, error) {
			if in.Username != "bob" || in.ItemName != "Rock Night" || in.Quantity != 1 {
				t.Errorf("unexpected add request: %+v", in)
			}
			return &grpcapi.CartEntry{ID: "entry"}, nil
		},
		checkoutFn: func(context.Context, *grpcapi.CheckoutRequest) (*grpcapi.CheckoutResponse, error) {
			return &grpcapi.CheckoutResponse{CreatedOrderIDs: []string{"order-1"}}, nil
		},
		summaryFn: func(context.Context, *grpcapi.GetOrderSummaryRequest) (*grpcapi.OrderSummary, error) {
			return &grpcapi.OrderSummary{PendingTotal: "50.00", Status: "pending"}, nil
		},
		payFn: func(_ context.Context, in *grpcapi.PayUserRequest) (*grpcapi.PaymentReceipt, error) {
			paidAmount = in.Amount
			return &grpcapi.PaymentReceipt{OrderIDs: []string{"order-1"}, Change: "0.00"}, nil
		},
	}
	r := &runner{client: client, cfg: cfg, col: col, user: "bob"}

	if err := r.runScenario(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if paidAmount != "50.00" {
		t.Fatalf("expected pending total to be paid, got %q", paidAmount)
	}
	for _, method := range []string{"AddToCart", "Checkout", "GetOrderSummary", "PayUser"} {
		if stats, ok := col.snapshot(method); !ok || stats.Success != 1 {
			t.Fatalf("%s: unexpected stats %+v", method, stats)
		}
	}
}

func TestRunScenario_CheckoutFailuresFailScenario(t *testing.T) {
	cfg := validTestConfig()
	client := &fakeTicketClient{
		addFn: func(context.Context, *grpcapi.AddToCartRequest) (*grpcapi.CartEntry, error) {
			return &grpcapi.CartEntry{}, nil
		},
		checkoutFn: func(context.Context, *grpcapi.CheckoutRequest) (*grpcapi.CheckoutResponse, error) {
			return &grpcapi.CheckoutResponse{Failures: []grpcapi.CheckoutFailure{{Code: "unavailable"}}}, nil
		},
	}
	r := &runner{client: client, cfg: cfg, col: newCollector(), user: "alice"}

	if err := r.runScenario(0); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestRunLoad_UsesOneUserPerWorker(t *testing.T) {
	cfg := validTestConfig()
	cfg.mode = modeCartContention
	cfg.total = 20

	var mu sync.Mutex
	carts := map[string]*fakeTicketClient{"alice": singleWinnerCart(), "bob": singleWinnerCart()}
	router := &fakeTicketClient{
		addFn: func(ctx context.Context, in *grpcapi.AddToCartRequest) (*grpcapi.CartEntry, error) {
			mu.Lock()
			cart := carts[in.Username]
			mu.Unlock()
			return cart.AddToCart(ctx, in)
		},
		removeFn: func(ctx context.Context, in *grpcapi.RemoveFromCartRequest) (*grpcapi.CartEntry, error) {
			mu.Lock()
			cart := carts[in.Username]
			mu.Unlock()
			return cart.RemoveFromCart(ctx, in)
		},
	}

	col := newCollector()
	runLoad([]ticketClient{router}, cfg, col)

	result := col.buildReport(cfg.mode, time.Now(), time.Second)
	if result.TotalScenarios != 20 || result.FailedScenarios != 0 || result.InvariantViolation != 0 {
		t.Fatalf("unexpected report: %+v", result)
	}
}

func TestUtilityFunctions(t *testing.T) {
	if got := percentile([]float64{1, 2, 3, 4}, 50); got != 2.5 {
		t.Fatalf("unexpected p50: %v", got)
	}
	if got := percentile(nil, 99); got != 0 {
		t.Fatalf("unexpected percentile of empty slice: %v", got)
	}
	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("unexpected ratio: %v", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("unexpected ratio for zero total: %v", got)
	}
	summary := buildLatencySummary([]float64{3, 1, 2})
	if summary.Min != 1 || summary.Max != 3 || summary.Avg != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := runTarget(config{duration: time.Minute, total: 10, totalSet: true}); got != "duration:1m0s,max-total:10" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := splitList(" a, ,b "); len(got) != 2 || got[1] != "b" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(oldWD) }()

	result := report{Mode: modeCheckoutPay, TotalScenarios: 3}
	if err := writeJSONReport("report.json", result); err != nil {
		t.Fatalf("write report: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Mode != modeCheckoutPay || decoded.TotalScenarios != 3 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := writeJSONReport("../escape.json", result); err == nil {
		t.Fatal("expected error for path outside current directory")
	}
	if err := writeJSONReport(".", result); err == nil {
		t.Fatal("expected error for directory path")
	}
}

func TestPrintReport(t *testing.T) {
	col := newCollector()
	col.record(scenarioMethod, 2*time.Millisecond, codes.OK)
	col.record("PayUser", time.Millisecond, codes.OK)
	result := col.buildReport(modeCheckoutPay, time.Now(), time.Second)

	output := captureStdout(t, func() {
		printReport(result, config{mode: modeCheckoutPay, total: 1})
	})

	for _, want := range []string{"Load test summary", "mode=checkout-pay run=count:1", "PayUser: calls=1"} {
		if !strings.Contains(output, want) {
			t.Fatalf("output %q does not contain %q", output, want)
		}
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}
