// Package poller bridges the browser redirect from the gateway's hosted
// page to the asynchronous webhook-driven payment state. The hosted flow can
// return the browser before the gateway's own webhook has reached the
// backend, so the poller re-reads the cart's payment state with bounded
// retries and a fixed delay, giving the UI a bounded worst case instead of
// an indefinite hang. The webhook path stays the authoritative,
// latency-tolerant update path.
package poller

import (
	stdcontext "context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/yourorg/checkout-reconciler/internal/metrics"
)

// Cart is the slice of the storefront cart the poller reads: the payment
// collection status and nothing else.
type Cart struct {
	ID            string
	PaymentStatus string // payment collection status: "authorized", "completed", ...
}

// Order is the order materialized from a cart once payment is authorized.
type Order struct {
	ID                  string
	ShippingCountryCode string
}

// CartService fetches the cart's current payment state. Reads may be stale;
// the poller re-fetches rather than trusting any single read.
type CartService interface {
	RetrieveCart(ctx stdcontext.Context, cartID string) (Cart, error)
}

// OrderService resolves the order created from a cart. Lookup fails while
// the webhook-driven workflow has not materialized the order yet.
type OrderService interface {
	RetrieveOrderByCart(ctx stdcontext.Context, cartID string) (Order, error)
}

// CartCleaner is the storefront-side cleanup run once an order is found:
// invalidate the cached order listing and clear the stored cart reference.
type CartCleaner interface {
	InvalidateOrderCache(ctx stdcontext.Context)
	RemoveCartID(ctx stdcontext.Context)
}

// State is the poller's state machine state.
type State string

const (
	StatePolling  State = "polling"
	StateResolved State = "resolved"
	StateTimedOut State = "timed_out"
)

// Attempt is one delayed re-fetch of the cart, kept in memory for the
// result only.
type Attempt struct {
	Number         int
	ObservedStatus string
	Timestamp      time.Time
}

// Result is the terminal outcome of one reconciliation run.
type Result struct {
	State        State
	Order        Order
	OrderMissing bool // resolved, but the order lookup failed (webhook race)
	Attempts     []Attempt
}

// Poller polls the cart payment status after a gateway redirect.
type Poller struct {
	carts       CartService
	orders      OrderService
	cleaner     CartCleaner
	maxAttempts int
	delay       time.Duration
	sleep       func(time.Duration) // injectable for tests
}

// NewPoller creates a Poller with the given bounds. maxAttempts counts the
// delayed re-fetches after the initial read; delay is the fixed wait before
// each of them.
func NewPoller(carts CartService, orders OrderService, cleaner CartCleaner, maxAttempts int, delay time.Duration) *Poller {
	if carts == nil {
		panic("cart service cannot be nil")
	}
	if orders == nil {
		panic("order service cannot be nil")
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &Poller{
		carts:       carts,
		orders:      orders,
		cleaner:     cleaner,
		maxAttempts: maxAttempts,
		delay:       delay,
		sleep:       time.Sleep,
	}
}

func isAuthorized(status string) bool {
	return status == "authorized" || status == "completed"
}

// Run executes the polling loop for one redirected browser. It always
// terminates: either the cart reaches an authorized-enough status
// (resolved) or the attempt budget runs out (timed_out). The bound is
// strictly on the cart-status poll — a resolved cart whose order lookup
// fails is reported as OrderMissing, not retried.
func (p *Poller) Run(ctx stdcontext.Context, cartID string) (Result, error) {
	tracer := otel.Tracer("poller")
	ctx, span := tracer.Start(ctx, "Poller.Run")
	defer span.End()

	result := Result{State: StatePolling}

	cart, err := p.carts.RetrieveCart(ctx, cartID)
	if err != nil {
		return result, fmt.Errorf("poller: initial cart fetch failed for %s: %w", cartID, err)
	}

	for attempt := 0; attempt < p.maxAttempts && !isAuthorized(cart.PaymentStatus); attempt++ {
		p.sleep(p.delay)

		cart, err = p.carts.RetrieveCart(ctx, cartID)
		if err != nil {
			return result, fmt.Errorf("poller: cart fetch failed for %s on attempt %d: %w", cartID, attempt+1, err)
		}
		result.Attempts = append(result.Attempts, Attempt{
			Number:         attempt + 1,
			ObservedStatus: cart.PaymentStatus,
			Timestamp:      time.Now(),
		})
		log.Printf("poller: cart %s attempt %d status %q", cartID, attempt+1, cart.PaymentStatus)
	}

	metrics.PollerAttempts.Observe(float64(len(result.Attempts)))

	if !isAuthorized(cart.PaymentStatus) {
		result.State = StateTimedOut
		metrics.PollerOutcomesTotal.WithLabelValues(string(StateTimedOut)).Inc()
		return result, nil
	}

	result.State = StateResolved

	order, err := p.orders.RetrieveOrderByCart(ctx, cartID)
	if err != nil {
		// Webhook race: the payment is authorized but the workflow has not
		// materialized the order yet. The attempt budget only covers the
		// cart poll, so report and stop.
		log.Printf("poller: order lookup failed for cart %s: %v", cartID, err)
		result.OrderMissing = true
		metrics.PollerOutcomesTotal.WithLabelValues("order_missing").Inc()
		return result, nil
	}

	if p.cleaner != nil {
		p.cleaner.InvalidateOrderCache(ctx)
		p.cleaner.RemoveCartID(ctx)
	}

	result.Order = order
	metrics.PollerOutcomesTotal.WithLabelValues(string(StateResolved)).Inc()
	return result, nil
}
