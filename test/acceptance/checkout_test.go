package acceptance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/tickets/internal/domain"
	"github.com/vladislavdragonenkov/tickets/internal/service/availability"
	"github.com/vladislavdragonenkov/tickets/internal/service/cart"
	"github.com/vladislavdragonenkov/tickets/internal/service/checkout"
	"github.com/vladislavdragonenkov/tickets/internal/service/ledger"
	"github.com/vladislavdragonenkov/tickets/internal/service/payment"
	"github.com/vladislavdragonenkov/tickets/internal/storage/memory"
)

type checkoutTestContext struct {
	catalog     *memory.Catalog
	cart        *cart.Store
	ledger      *ledger.Ledger
	coordinator *checkout.Coordinator
	payments    *payment.Processor

	result  checkout.Result
	receipt domain.Receipt
	err     error
}

func (c *checkoutTestContext) reset() {
	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	entry := logger.WithField("component", "acceptance")

	state := memory.NewStore()
	c.catalog = memory.NewCatalog(state)
	cartRepo := memory.NewCartRepository(state)
	orderRepo := memory.NewOrderRepository(state)

	c.cart = cart.NewStore(c.catalog, c.catalog, cartRepo, cart.WithLogger(entry))
	c.ledger = ledger.New(c.catalog, orderRepo, ledger.WithLogger(entry))
	c.coordinator = checkout.NewCoordinator(c.catalog, cartRepo, orderRepo,
		availability.NewGuard(c.catalog), c.ledger, checkout.WithLogger(entry))
	c.payments = payment.NewProcessor(c.catalog, c.catalog, orderRepo, memory.NewPaymentRepository(state),
		payment.WithLogger(entry))

	c.result = checkout.Result{}
	c.receipt = domain.Receipt{}
	c.err = nil
}

func (c *checkoutTestContext) aUser(username string) error {
	c.catalog.PutUser(domain.User{Username: username, Role: domain.RoleUser})
	return nil
}

func (c *checkoutTestContext) anAvailableConcertPriced(name, price string) error {
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	c.catalog.PutConcert(domain.Concert{Name: name, Price: amount, Available: true})
	return nil
}

func (c *checkoutTestContext) concertBecomesUnavailable(name string) error {
	concert, err := c.catalog.ConcertByName(context.Background(), name)
	if err != nil {
		return err
	}
	return c.catalog.SetAvailable(concert.ID, false)
}

func (c *checkoutTestContext) addsTicketsToCart(username string, quantity int, concert string) error {
	_, c.err = c.cart.Add(context.Background(), username, concert, quantity)
	return nil
}

func (c *checkoutTestContext) checksOut(username string) error {
	c.result, c.err = c.coordinator.Checkout(context.Background(), username)
	return nil
}

func (c *checkoutTestContext) pays(username, amount, method string) error {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	c.receipt, c.err = c.payments.PayUser(context.Background(), username, domain.PaymentMethod(method), value)
	return nil
}

func (c *checkoutTestContext) cancelsTheFirstOrder(string) error {
	if len(c.result.CreatedOrderIDs) == 0 {
		return errors.New("no orders were created")
	}
	_, c.err = c.ledger.Cancel(context.Background(), c.result.CreatedOrderIDs[0])
	return nil
}

func (c *checkoutTestContext) ordersAreCreated(count int) error {
	if c.err != nil {
		return fmt.Errorf("checkout failed: %w", c.err)
	}
	if got := len(c.result.CreatedOrderIDs); got != count {
		return fmt.Errorf("expected %d orders, got %d", count, got)
	}
	return nil
}

func (c *checkoutTestContext) checkoutFailuresAreReported(count int) error {
	if got := len(c.result.Failures); got != count {
		return fmt.Errorf("expected %d failures, got %d", count, got)
	}
	return nil
}

func (c *checkoutTestContext) theCartIsEmpty(username string) error {
	items, err := c.cart.List(context.Background(), username)
	if err != nil {
		return err
	}
	if len(items) != 0 {
		return fmt.Errorf("expected empty cart, got %d items", len(items))
	}
	return nil
}

func (c *checkoutTestContext) theCartContains(username, concert string) error {
	items, err := c.cart.List(context.Background(), username)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ConcertName == concert {
			return nil
		}
	}
	return fmt.Errorf("concert %q is not in the cart of %s", concert, username)
}

func (c *checkoutTestContext) theOrderSummaryIs(username, status, total string) error {
	summary, err := c.ledger.Summary(context.Background(), username)
	if err != nil {
		return err
	}
	if string(summary.Status) != status {
		return fmt.Errorf("expected status %s, got %s", status, summary.Status)
	}
	expected, err := decimal.NewFromString(total)
	if err != nil {
		return err
	}
	if !summary.TotalPrice.Equal(expected) {
		return fmt.Errorf("expected total %s, got %s", expected, summary.TotalPrice)
	}
	return nil
}

func (c *checkoutTestContext) thePaymentIsAccepted(change string) error {
	if c.err != nil {
		return fmt.Errorf("payment failed: %w", c.err)
	}
	expected, err := decimal.NewFromString(change)
	if err != nil {
		return err
	}
	if !c.receipt.Change().Equal(expected) {
		return fmt.Errorf("expected change %s, got %s", expected, c.receipt.Change())
	}
	return nil
}

func (c *checkoutTestContext) theOperationFailsWith(kind string) error {
	if c.err == nil {
		return errors.New("expected operation to fail but it succeeded")
	}
	if got := domain.Kind(c.err); got != kind {
		return fmt.Errorf("expected error kind %s, got %s (%v)", kind, got, c.err)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^a user "([^"]*)"$`, tc.aUser)
	ctx.Step(`^an available concert "([^"]*)" priced ([\d.]+)$`, tc.anAvailableConcertPriced)
	ctx.Step(`^concert "([^"]*)" becomes unavailable$`, tc.concertBecomesUnavailable)
	ctx.Step(`^"([^"]*)" adds (\d+) tickets? for "([^"]*)" to the cart$`, tc.addsTicketsToCart)

	ctx.Step(`^"([^"]*)" checks out$`, tc.checksOut)
	ctx.Step(`^"([^"]*)" pays ([\d.]+) by "([^"]*)"$`, tc.pays)
	ctx.Step(`^"([^"]*)" cancels the first order$`, tc.cancelsTheFirstOrder)

	ctx.Step(`^(\d+) orders are created$`, tc.ordersAreCreated)
	ctx.Step(`^(\d+) checkout failures are reported$`, tc.checkoutFailuresAreReported)
	ctx.Step(`^the cart of "([^"]*)" is empty$`, tc.theCartIsEmpty)
	ctx.Step(`^the cart of "([^"]*)" contains "([^"]*)"$`, tc.theCartContains)
	ctx.Step(`^the order summary of "([^"]*)" is "([^"]*)" with total ([\d.]+)$`, tc.theOrderSummaryIs)
	ctx.Step(`^the payment is accepted with change ([\d.]+)$`, tc.thePaymentIsAccepted)
	ctx.Step(`^the operation fails with "([^"]*)"$`, tc.theOperationFailsWith)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
