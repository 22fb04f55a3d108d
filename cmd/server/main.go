package main

import (
	stdcontext "context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yourorg/checkout-reconciler/internal/circuitbreaker"
	"github.com/yourorg/checkout-reconciler/internal/classifier"
	"github.com/yourorg/checkout-reconciler/internal/config"
	custom_context "github.com/yourorg/checkout-reconciler/internal/context"
	"github.com/yourorg/checkout-reconciler/internal/monitor"
	"github.com/yourorg/checkout-reconciler/internal/policy"
	"github.com/yourorg/checkout-reconciler/internal/poller"
	"github.com/yourorg/checkout-reconciler/internal/provider"
	"github.com/yourorg/checkout-reconciler/internal/provider/checkoutcom"
	"github.com/yourorg/checkout-reconciler/internal/reporting"
	"github.com/yourorg/checkout-reconciler/internal/session"
	"github.com/yourorg/checkout-reconciler/internal/webhook"
)

// initiateRequest is the storefront's request to start a hosted payment.
// The amount arrives in major units the way the storefront displays it.
type initiateRequest struct {
	CartID         string                 `json:"cart_id"`
	Amount         float64                `json:"amount"`
	CurrencyCode   string                 `json:"currency_code"`
	CustomerEmail  string                 `json:"customer_email"`
	BillingAddress *billingAddress        `json:"billing_address"`
	SuccessURL     string                 `json:"success_url"`
	FailureURL     string                 `json:"failure_url"`
	CkoToken       string                 `json:"cko_token"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// withCartID appends the cart id to a redirect URL so the gateway hands it
// back when it returns the browser.
func withCartID(rawURL, cartID string) string {
	if rawURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "cart_id=" + url.QueryEscape(cartID)
}

// billingAddress uses the storefront's field names; the gateway adapter has
// its own wire shape.
type billingAddress struct {
	Address1    string `json:"address_1"`
	Address2    string `json:"address_2"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
}

func (b *billingAddress) toProvider() *provider.Address {
	if b == nil {
		return nil
	}
	return &provider.Address{
		Line1:       b.Address1,
		Line2:       b.Address2,
		City:        b.City,
		Zip:         b.PostalCode,
		Country:     strings.ToUpper(b.CountryCode),
		CountryCode: strings.ToUpper(b.CountryCode),
	}
}

// storefrontBridge is the in-process stand-in for the commerce backend's
// cart and order services. Cart payment status is derived from the local
// payment session; the order is materialized lazily once the session is
// authorized. A deployment that fronts a real commerce backend replaces
// this with HTTP-backed implementations of the same interfaces.
type storefrontBridge struct {
	store session.Store

	mu           sync.Mutex
	cartSessions map[string]string // cart id -> payment session id
	orders       map[string]poller.Order
}

func newStorefrontBridge(store session.Store) *storefrontBridge {
	if store == nil {
		panic("session store cannot be nil")
	}
	return &storefrontBridge{
		store:        store,
		cartSessions: make(map[string]string),
		orders:       make(map[string]poller.Order),
	}
}

func (b *storefrontBridge) bindCart(cartID, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cartSessions[cartID] = sessionID
}

func (b *storefrontBridge) sessionForCart(cartID string) (session.PaymentSession, error) {
	b.mu.Lock()
	sessionID, ok := b.cartSessions[cartID]
	b.mu.Unlock()
	if !ok {
		return session.PaymentSession{}, fmt.Errorf("no payment session for cart %s", cartID)
	}
	return b.store.Get(sessionID)
}

func (b *storefrontBridge) RetrieveCart(ctx stdcontext.Context, cartID string) (poller.Cart, error) {
	sess, err := b.sessionForCart(cartID)
	if err != nil {
		return poller.Cart{}, err
	}

	status := "awaiting"
	switch sess.Status {
	case classifier.StatusAuthorized, classifier.StatusCaptured:
		status = "authorized"
	}
	return poller.Cart{ID: cartID, PaymentStatus: status}, nil
}

func (b *storefrontBridge) RetrieveOrderByCart(ctx stdcontext.Context, cartID string) (poller.Order, error) {
	b.mu.Lock()
	if order, ok := b.orders[cartID]; ok {
		b.mu.Unlock()
		return order, nil
	}
	b.mu.Unlock()

	sess, err := b.sessionForCart(cartID)
	if err != nil {
		return poller.Order{}, err
	}
	if sess.Status != classifier.StatusAuthorized && sess.Status != classifier.StatusCaptured {
		return poller.Order{}, fmt.Errorf("order not found for cart %s", cartID)
	}

	countryCode := "us"
	if cc, ok := sess.Data["country_code"].(string); ok && cc != "" {
		countryCode = strings.ToLower(cc)
	}
	order := poller.Order{
		ID:                  "order_" + uuid.New().String(),
		ShippingCountryCode: countryCode,
	}

	b.mu.Lock()
	b.orders[cartID] = order
	b.mu.Unlock()
	return order, nil
}

func (b *storefrontBridge) InvalidateOrderCache(ctx stdcontext.Context) {
	log.Println("storefront bridge: order cache invalidated")
}

func (b *storefrontBridge) RemoveCartID(ctx stdcontext.Context) {
	log.Println("storefront bridge: stored cart reference cleared")
}

type server struct {
	cfg             config.Config
	registry        *provider.Registry
	store           session.Store
	bridge          *storefrontBridge
	initiateMonitor *monitor.ContractMonitor
	webhookHandler  *webhook.Handler
	pollerHandler   *poller.Handler
	reporter        *reporting.Reporter
}

// initiatePaymentHandler creates a hosted payment session at the gateway and
// a pending local session bound to the cart. The success and failure URLs
// both point at the redirect reconciliation endpoint with the cart id
// appended; the gateway adds its own cko-session-id on redirect.
func (s *server) initiatePaymentHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	valid, validationErrs, err := s.initiateMonitor.Validate(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": monitor.FormatErrors(validationErrs)})
		return
	}

	var req initiateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	prov, err := s.registry.Get(checkoutcom.Identifier)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment provider unavailable"})
		return
	}

	sessionID := "payses_" + uuid.New().String()
	amountMinor := int64(math.Round(req.Amount * 100))

	// Caller-supplied redirect URLs win, with the cart id appended so the
	// gateway hands it back; without them the browser comes back to the
	// reconciliation endpoint.
	processorURL := withCartID(s.cfg.BackendBase+"/payment/checkout/processor", req.CartID)
	successURL := withCartID(req.SuccessURL, req.CartID)
	if successURL == "" {
		successURL = processorURL
	}
	failureURL := withCartID(req.FailureURL, req.CartID)
	if failureURL == "" {
		failureURL = processorURL
	}

	// Request metadata rides along to the gateway so ids like the payment
	// collection id round-trip through webhook payloads.
	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		if str, ok := v.(string); ok {
			metadata[k] = str
		} else {
			metadata[k] = fmt.Sprintf("%v", v)
		}
	}
	metadata[checkoutcom.MetadataSessionIDKey] = sessionID

	var billing *provider.Billing
	if req.BillingAddress != nil || req.CustomerEmail != "" {
		billing = &provider.Billing{Address: req.BillingAddress.toProvider(), Email: req.CustomerEmail}
	}

	traceCtx := custom_context.NewTraceContext()
	out, err := prov.InitiatePayment(traceCtx, provider.InitiateInput{
		CartID:     req.CartID,
		Amount:     amountMinor,
		Currency:   strings.ToUpper(req.CurrencyCode),
		Token:      req.CkoToken,
		SuccessURL: successURL,
		FailureURL: failureURL,
		Billing:    billing,
		Metadata:   metadata,
	})
	if err != nil {
		log.Printf("initiate: gateway session creation failed for cart %s: %v", req.CartID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create payment session"})
		return
	}

	data := map[string]interface{}{
		"cart_id":          req.CartID,
		"checkout_session": out.Data,
		"public_key":       s.cfg.Checkout.PublicKey,
	}
	data[checkoutcom.MetadataSessionIDKey] = sessionID
	if req.CkoToken != "" {
		data["cko_token"] = req.CkoToken
	}
	if req.BillingAddress != nil && req.BillingAddress.CountryCode != "" {
		data["country_code"] = req.BillingAddress.CountryCode
	}

	if err := s.store.Upsert(session.PaymentSession{
		ID:         sessionID,
		ProviderID: checkoutcom.Identifier,
		Status:     classifier.StatusPending,
		Data:       data,
		Amount:     amountMinor,
		Currency:   strings.ToLower(req.CurrencyCode),
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist payment session"})
		return
	}
	s.bridge.bindCart(req.CartID, sessionID)

	c.JSON(http.StatusOK, gin.H{
		"id":               sessionID,
		"checkout_session": out.Data,
		"public_key":       s.cfg.Checkout.PublicKey,
	})
}

func (s *server) reconciliationReportHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.reporter.Generate())
}

func setupRouter(s *server) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("checkout-reconciler"))

	router.POST("/store/payments/checkout/initiate", s.initiatePaymentHandler)
	router.POST("/store/webhooks/:provider", s.webhookHandler.Handle)
	router.GET("/payment/checkout/processor", s.pollerHandler.Handle)
	router.GET("/admin/reconciliation/report", s.reconciliationReportHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func buildServer(cfg config.Config) (*server, error) {
	enforcer, err := policy.NewRetryPolicyEnforcer(policy.DefaultGatewayRules())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize retry policy: %w", err)
	}
	breaker := circuitbreaker.NewCircuitBreakerWithSettings(5, 30*time.Second, 2)

	client := checkoutcom.NewClient(cfg.Checkout, &http.Client{Timeout: 15 * time.Second}, enforcer, breaker)
	adapter := checkoutcom.NewAdapter(client, cfg.Checkout)
	registry := provider.NewRegistry(adapter)

	store := session.NewMemoryStore()
	runner := session.NewMemoryWorkflowRunner(store)
	reporter := reporting.NewReporter()

	processor := webhook.NewProcessor(store, runner, reporter)
	webhookHandler := webhook.NewHandler(registry, processor, reporter)

	bridge := newStorefrontBridge(store)
	p := poller.NewPoller(bridge, bridge, bridge, cfg.Poller.MaxAttempts, cfg.Poller.Delay)
	pollerHandler := poller.NewHandler(p, cfg.StorefrontBase)

	initiateMonitor, err := monitor.NewInitiateMonitor()
	if err != nil {
		return nil, fmt.Errorf("failed to compile initiate request schema: %w", err)
	}

	return &server{
		cfg:             cfg,
		registry:        registry,
		store:           store,
		bridge:          bridge,
		initiateMonitor: initiateMonitor,
		webhookHandler:  webhookHandler,
		pollerHandler:   pollerHandler,
		reporter:        reporter,
	}, nil
}

func initTracing() (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp, nil
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	tp, err := initTracing()
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(stdcontext.Background()); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		}
	}()

	srv, err := buildServer(cfg)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	log.Printf("Starting server on %s...", cfg.ListenAddr)
	router := setupRouter(srv)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
