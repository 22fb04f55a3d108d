package checkoutcom

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/checkout-reconciler/internal/circuitbreaker"
	"github.com/yourorg/checkout-reconciler/internal/config"
	"github.com/yourorg/checkout-reconciler/internal/context"
	"github.com/yourorg/checkout-reconciler/internal/policy"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	enforcer, err := policy.NewRetryPolicyEnforcer(policy.DefaultGatewayRules())
	require.NoError(t, err)

	client := NewClient(config.Checkout{
		SecretKey:  "sk_test_secret",
		APIBaseURL: server.URL,
	}, server.Client(), enforcer, circuitbreaker.NewCircuitBreaker())
	client.retryDelay = time.Millisecond
	return client, server
}

func TestClient_CapturePayment_Success(t *testing.T) {
	var gotAuth, gotIdempotency string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("Cko-Idempotency-Key")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments/pay_123/captures", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"action_id":"act_1","reference":"ORD-1"}`))
	}))

	tc := context.NewTraceContext()
	response, err := client.CapturePayment(tc, "pay_123")
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk_test_secret", gotAuth)
	assert.Contains(t, gotIdempotency, tc.TraceID, "idempotency key is derived from the trace")
	assert.Equal(t, "act_1", response["action_id"])
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"pay_123","status":"Captured"}`))
	}))

	response, err := client.GetPayment(context.NewTraceContext(), "pay_123")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "two retries then success")
	assert.Equal(t, "Captured", response["status"])
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_type":"request_invalid"}`))
	}))

	_, err := client.VoidPayment(context.NewTraceContext(), "pay_123")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.StatusCode)
	assert.Contains(t, gwErr.Error(), "request_invalid")
}

func TestClient_ExhaustsRetriesAndFails(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.CapturePayment(context.NewTraceContext(), "pay_123")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "default policy allows three attempts")
}

func TestClient_CircuitOpenShortCircuits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	enforcer, err := policy.NewRetryPolicyEnforcer(nil) // no retries
	require.NoError(t, err)
	breaker := circuitbreaker.NewCircuitBreakerWithSettings(1, time.Minute, 1)
	client := NewClient(config.Checkout{SecretKey: "sk", APIBaseURL: server.URL}, server.Client(), enforcer, breaker)

	_, err = client.CapturePayment(context.NewTraceContext(), "pay_1")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())

	// The single failure tripped the breaker for the payments target.
	_, err = client.CapturePayment(context.NewTraceContext(), "pay_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(1), calls.Load(), "second call never reached the gateway")
}

func TestClient_SessionEndpointTripsFaster(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	enforcer, err := policy.NewRetryPolicyEnforcer(nil) // no retries
	require.NoError(t, err)
	client := NewClient(config.Checkout{SecretKey: "sk", APIBaseURL: server.URL},
		server.Client(), enforcer, circuitbreaker.NewCircuitBreaker())

	req := paymentSessionRequest{Amount: 1000, Currency: "EUR"}
	for i := 0; i < 3; i++ {
		_, err = client.RequestPaymentSession(context.NewTraceContext(), req)
		require.Error(t, err)
	}
	require.Equal(t, int32(3), calls.Load())

	// The session endpoint override trips at three failures, well before
	// the breaker-wide threshold.
	_, err = client.RequestPaymentSession(context.NewTraceContext(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.Equal(t, int32(3), calls.Load(), "fourth session call never reached the gateway")

	// The payments target is governed separately and still goes through.
	_, err = client.GetPayment(context.NewTraceContext(), "pay_1")
	require.Error(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestClient_RefundPayment_AmountBody(t *testing.T) {
	var gotBody []byte
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"action_id":"act_ref"}`))
	}))

	_, err := client.RefundPayment(context.NewTraceContext(), "pay_123", 250)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":250}`, string(gotBody))
}
