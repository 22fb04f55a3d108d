package checkoutcom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/checkout-reconciler/internal/circuitbreaker"
	"github.com/yourorg/checkout-reconciler/internal/config"
	"github.com/yourorg/checkout-reconciler/internal/context"
	"github.com/yourorg/checkout-reconciler/internal/metrics"
	"github.com/yourorg/checkout-reconciler/internal/policy"
)

const (
	defaultRetryDelay = 500 * time.Millisecond

	// Circuit breaker targets, one per gateway endpoint group.
	targetPaymentSessions = "payment-sessions"
	targetPayments        = "payments"
)

// GatewayError is a non-2xx response or transport failure from the gateway.
type GatewayError struct {
	Operation  string
	StatusCode int // 0 for transport failures
	Body       []byte
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("checkoutcom: %s returned HTTP %d: %s", e.Operation, e.StatusCode, string(e.Body))
	}
	return fmt.Sprintf("checkoutcom: %s failed: %v", e.Operation, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Client is a thin HTTP client for the Checkout.com endpoints this service
// touches: hosted payment-sessions plus the payment capture/void/refund/get
// operations. Retries are decided by the injected policy enforcer and calls
// are guarded by a per-endpoint-group circuit breaker.
type Client struct {
	httpClient *http.Client
	cfg        config.Checkout
	enforcer   *policy.RetryPolicyEnforcer
	breaker    *circuitbreaker.CircuitBreaker
	retryDelay time.Duration
}

// NewClient creates a Client. A nil httpClient gets a 10 s timeout default.
func NewClient(cfg config.Checkout, httpClient *http.Client, enforcer *policy.RetryPolicyEnforcer, breaker *circuitbreaker.CircuitBreaker) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if enforcer == nil {
		panic("retry policy enforcer cannot be nil")
	}
	if breaker == nil {
		panic("circuit breaker cannot be nil")
	}
	// Hosted-session creation sits in the shopper's checkout path; trip it
	// faster than the back-office payment operations.
	breaker.SetTargetSettings(targetPaymentSessions, circuitbreaker.Settings{FailureThreshold: 3})
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		enforcer:   enforcer,
		breaker:    breaker,
		retryDelay: defaultRetryDelay,
	}
}

// generateIdempotencyKey derives a per-operation idempotency key from the
// request trace so the gateway can deduplicate our retries.
func generateIdempotencyKey(tc context.TraceContext, operation string) string {
	key := fmt.Sprintf("%s-%s-%s", tc.TraceID, operation, uuid.NewString())
	if len(key) > 255 {
		return key[:255]
	}
	return key
}

// do issues one gateway call with policy-driven retries. It returns the
// decoded JSON body for 2xx responses and a *GatewayError otherwise.
func (c *Client) do(tc context.TraceContext, target, operation, method, path string, payload interface{}) (map[string]interface{}, error) {
	var requestBody []byte
	if payload != nil {
		var err error
		requestBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("checkoutcom: failed to encode %s request: %w", operation, err)
		}
	}

	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.GatewayRequestDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
	}()

	if !c.breaker.IsHealthy(target) {
		outcome = "circuit_open"
		return nil, &GatewayError{Operation: operation, Err: fmt.Errorf("circuit open for %s", target)}
	}

	idempotencyKey := generateIdempotencyKey(tc, operation)

	var lastErr *GatewayError
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			time.Sleep(c.retryDelay)
		}

		var bodyReader io.Reader
		if requestBody != nil {
			bodyReader = bytes.NewReader(requestBody)
		}
		req, err := http.NewRequest(method, c.cfg.APIBaseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("checkoutcom: failed to create %s request: %w", operation, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
		req.Header.Set("Content-Type", "application/json")
		if method != http.MethodGet {
			req.Header.Set("Cko-Idempotency-Key", idempotencyKey)
		}

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			lastErr = &GatewayError{Operation: operation, Err: doErr}
			if c.shouldRetry(attempt, 0, true) {
				continue
			}
			c.breaker.RecordFailure(target)
			return nil, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			c.breaker.RecordFailure(target)
			return nil, &GatewayError{Operation: operation, StatusCode: resp.StatusCode, Err: readErr}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.breaker.RecordSuccess(target)
			outcome = "success"
			if len(respBody) == 0 {
				return map[string]interface{}{}, nil
			}
			var decoded map[string]interface{}
			if err := json.Unmarshal(respBody, &decoded); err != nil {
				return nil, &GatewayError{Operation: operation, StatusCode: resp.StatusCode, Body: respBody, Err: err}
			}
			return decoded, nil
		}

		lastErr = &GatewayError{Operation: operation, StatusCode: resp.StatusCode, Body: respBody}
		if c.shouldRetry(attempt, resp.StatusCode, false) {
			continue
		}
		c.breaker.RecordFailure(target)
		return nil, lastErr
	}
}

func (c *Client) shouldRetry(attempt, httpStatus int, networkError bool) bool {
	decision, err := c.enforcer.Evaluate(policy.Attempt{
		AttemptNumber: attempt,
		HTTPStatus:    httpStatus,
		NetworkError:  networkError,
	})
	if err != nil {
		// A broken rule must not turn into an infinite retry loop.
		return false
	}
	return decision.AllowRetry
}

// paymentSessionRequest is the hosted payment-session create payload.
type paymentSessionRequest struct {
	Amount                int64             `json:"amount"`
	Currency              string            `json:"currency"`
	Billing               interface{}       `json:"billing,omitempty"`
	SuccessURL            string            `json:"success_url,omitempty"`
	FailureURL            string            `json:"failure_url,omitempty"`
	Capture               bool              `json:"capture"`
	ThreeDS               threeDSConfig     `json:"3ds"`
	EnabledPaymentMethods []string          `json:"enabled_payment_methods"`
	ProcessingChannelID   string            `json:"processing_channel_id,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

type threeDSConfig struct {
	Enabled bool `json:"enabled"`
}

// RequestPaymentSession creates a hosted payment session. The hosted flow
// never captures automatically (capture:false) and always challenges with
// 3DS; capture is driven later through the canonical lifecycle.
func (c *Client) RequestPaymentSession(tc context.TraceContext, req paymentSessionRequest) (map[string]interface{}, error) {
	return c.do(tc, targetPaymentSessions, "payment_sessions_request", http.MethodPost, "/payment-sessions", req)
}

// GetPayment fetches the raw payment object.
func (c *Client) GetPayment(tc context.TraceContext, paymentID string) (map[string]interface{}, error) {
	return c.do(tc, targetPayments, "payments_get", http.MethodGet, "/payments/"+paymentID, nil)
}

// CapturePayment captures the full payment amount.
func (c *Client) CapturePayment(tc context.TraceContext, paymentID string) (map[string]interface{}, error) {
	return c.do(tc, targetPayments, "payments_capture", http.MethodPost, "/payments/"+paymentID+"/captures", nil)
}

// VoidPayment voids an authorized, uncaptured payment.
func (c *Client) VoidPayment(tc context.TraceContext, paymentID string) (map[string]interface{}, error) {
	return c.do(tc, targetPayments, "payments_void", http.MethodPost, "/payments/"+paymentID+"/voids", nil)
}

// RefundPayment refunds a captured payment. Amount 0 requests a full refund.
func (c *Client) RefundPayment(tc context.TraceContext, paymentID string, amount int64) (map[string]interface{}, error) {
	var payload interface{}
	if amount > 0 {
		payload = map[string]interface{}{"amount": amount}
	}
	return c.do(tc, targetPayments, "payments_refund", http.MethodPost, "/payments/"+paymentID+"/refunds", payload)
}
