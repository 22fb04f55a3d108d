package checkoutcom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/checkout-reconciler/internal/circuitbreaker"
	"github.com/yourorg/checkout-reconciler/internal/classifier"
	"github.com/yourorg/checkout-reconciler/internal/config"
	"github.com/yourorg/checkout-reconciler/internal/context"
	"github.com/yourorg/checkout-reconciler/internal/policy"
	"github.com/yourorg/checkout-reconciler/internal/provider"
)

func newTestAdapter(t *testing.T, cfg config.Checkout, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.SecretKey = "sk_test_secret"
	cfg.APIBaseURL = server.URL

	enforcer, err := policy.NewRetryPolicyEnforcer(nil)
	require.NoError(t, err)

	client := NewClient(cfg, server.Client(), enforcer, circuitbreaker.NewCircuitBreaker())
	client.retryDelay = time.Millisecond
	return NewAdapter(client, cfg)
}

func TestAdapter_InitiatePayment(t *testing.T) {
	var gotRequest map[string]interface{}
	adapter := newTestAdapter(t, config.Checkout{ProcessingChannelID: "pc_test_channel"},
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/payment-sessions", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"ps_abc123","_links":{"redirect":{"href":"https://pay.checkout.com/ps_abc123"}}}`))
		}))

	output, err := adapter.InitiatePayment(context.NewTraceContext(), provider.InitiateInput{
		CartID:     "cart_1",
		Amount:     4200,
		Currency:   "eur",
		SuccessURL: "https://shop.example.com/processor?cart_id=cart_1",
		FailureURL: "https://shop.example.com/checkout?cart_id=cart_1",
		Metadata: map[string]string{
			MetadataSessionIDKey: "payses_1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "ps_abc123", output.ID)
	assert.Contains(t, output.Data, "_links")

	assert.Equal(t, float64(4200), gotRequest["amount"])
	assert.Equal(t, "EUR", gotRequest["currency"])
	assert.Equal(t, false, gotRequest["capture"], "hosted sessions never auto-capture")
	assert.Equal(t, map[string]interface{}{"enabled": true}, gotRequest["3ds"])
	assert.Equal(t, []interface{}{"card"}, gotRequest["enabled_payment_methods"])
	assert.Equal(t, "pc_test_channel", gotRequest["processing_channel_id"])
	assert.Equal(t, "payses_1", gotRequest["metadata"].(map[string]interface{})[MetadataSessionIDKey])
}

func TestAdapter_AuthorizePayment(t *testing.T) {
	adapter := newTestAdapter(t, config.Checkout{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("authorize must not call the gateway")
	}))

	t.Run("Defaults to authorized", func(t *testing.T) {
		output, err := adapter.AuthorizePayment(context.NewTraceContext(), provider.AuthorizeContext{
			PaymentID: "pay_123",
			Source:    map[string]interface{}{"scheme": "Visa", "last_4": "4242"},
		})
		require.NoError(t, err)
		assert.Equal(t, classifier.StatusAuthorized, output.Status)
		assert.Equal(t, true, output.Data["success"])
		assert.Equal(t, "pay_123", output.Data["paymentId"])
		assert.Equal(t, "Visa", output.Data["scheme"])
	})

	t.Run("Honors status override", func(t *testing.T) {
		output, err := adapter.AuthorizePayment(context.NewTraceContext(), provider.AuthorizeContext{
			StatusOverride: classifier.StatusCaptured,
		})
		require.NoError(t, err)
		assert.Equal(t, classifier.StatusCaptured, output.Status)
	})

	t.Run("Empty context still succeeds", func(t *testing.T) {
		output, err := adapter.AuthorizePayment(context.NewTraceContext(), provider.AuthorizeContext{})
		require.NoError(t, err)
		assert.Equal(t, classifier.StatusAuthorized, output.Status)
		_, hasPaymentID := output.Data["paymentId"]
		assert.False(t, hasPaymentID)
	})
}

func TestAdapter_CapturePayment(t *testing.T) {
	adapter := newTestAdapter(t, config.Checkout{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_123/captures", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"action_id":"act_cap"}`))
	}))

	t.Run("Missing payment id", func(t *testing.T) {
		_, err := adapter.CapturePayment(context.NewTraceContext(), map[string]interface{}{})
		require.Error(t, err)
		assert.True(t, provider.IsInvalidData(err))
	})

	t.Run("Captures", func(t *testing.T) {
		response, err := adapter.CapturePayment(context.NewTraceContext(), map[string]interface{}{"paymentId": "pay_123"})
		require.NoError(t, err)
		assert.Equal(t, "act_cap", response["action_id"])
	})
}

func TestAdapter_CancelPayment(t *testing.T) {
	adapter := newTestAdapter(t, config.Checkout{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_123/voids", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"action_id":"act_void"}`))
	}))

	_, err := adapter.CancelPayment(context.NewTraceContext(), nil)
	require.Error(t, err)
	assert.True(t, provider.IsInvalidData(err))

	response, err := adapter.CancelPayment(context.NewTraceContext(), map[string]interface{}{"paymentId": "pay_123"})
	require.NoError(t, err)
	assert.Equal(t, "act_void", response["action_id"])
}

func TestAdapter_DeletePayment_BestEffort(t *testing.T) {
	t.Run("Void failure is swallowed", func(t *testing.T) {
		adapter := newTestAdapter(t, config.Checkout{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Terminal payments cannot be voided.
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))

		err := adapter.DeletePayment(context.NewTraceContext(), map[string]interface{}{"paymentId": "pay_123"})
		assert.NoError(t, err, "deletion is best-effort and must report success")
	})

	t.Run("Missing payment id skips", func(t *testing.T) {
		adapter := newTestAdapter(t, config.Checkout{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no gateway call expected without a payment id")
		}))

		assert.NoError(t, adapter.DeletePayment(context.NewTraceContext(), nil))
	})
}

func TestAdapter_RefundPayment(t *testing.T) {
	adapter := newTestAdapter(t, config.Checkout{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_123/refunds", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"action_id":"act_ref"}`))
	}))

	_, err := adapter.RefundPayment(context.NewTraceContext(), map[string]interface{}{}, 0)
	require.Error(t, err)
	assert.True(t, provider.IsInvalidData(err))

	response, err := adapter.RefundPayment(context.NewTraceContext(), map[string]interface{}{"paymentId": "pay_123"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "act_ref", response["action_id"])
}

func TestAdapter_GetPaymentStatus(t *testing.T) {
	cases := []struct {
		gatewayStatus string
		want          classifier.Status
	}{
		{"Authorized", classifier.StatusAuthorized},
		{"Captured", classifier.StatusCaptured},
		{"Declined", classifier.StatusCanceled},
		{"Expired", classifier.StatusCanceled},
		{"Canceled", classifier.StatusCanceled},
		{"Pending", classifier.StatusPending},
		{"Card Verified", classifier.StatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.gatewayStatus, func(t *testing.T) {
			adapter := newTestAdapter(t, config.Checkout{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"id":"pay_123","status":"` + tc.gatewayStatus + `"}`))
			}))

			status, err := adapter.GetPaymentStatus(context.NewTraceContext(), map[string]interface{}{"paymentId": "pay_123"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, status)
		})
	}

	t.Run("Missing payment id", func(t *testing.T) {
		adapter := newTestAdapter(t, config.Checkout{}, http.NotFoundHandler())
		_, err := adapter.GetPaymentStatus(context.NewTraceContext(), nil)
		require.Error(t, err)
		assert.True(t, provider.IsInvalidData(err))
	})
}

func webhookBody(t *testing.T, balances map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"type": "payment_captured",
		"data": map[string]interface{}{
			"id": "pay_123",
			"metadata": map[string]interface{}{
				MetadataSessionIDKey: "payses_1",
			},
			"source": map[string]interface{}{
				"type":         "card",
				"scheme":       "Visa",
				"last_4":       "4242",
				"bin":          "424242",
				"expiry_month": 12,
				"expiry_year":  2030,
				"name":         "Ada Lovelace",
				"avs_check":    "S",
			},
			"balances": balances,
		},
	})
	require.NoError(t, err)
	return body
}

func TestAdapter_GetWebhookActionAndData(t *testing.T) {
	adapter := newTestAdapter(t, config.Checkout{}, http.NotFoundHandler())

	t.Run("Authorized", func(t *testing.T) {
		action := adapter.GetWebhookActionAndData(webhookBody(t, map[string]interface{}{
			"total_authorized":     1000,
			"total_captured":       0,
			"available_to_capture": 1000,
		}))

		assert.Equal(t, classifier.ActionAuthorized, action.Action)
		assert.Equal(t, classifier.StatusAuthorized, action.Status)
		assert.Equal(t, "payses_1", action.SessionID)
		assert.Equal(t, "pay_123", action.PaymentID)
		assert.Equal(t, int64(1000), action.Amount)
		assert.Equal(t, "Visa", action.Source["scheme"])
		_, leaked := action.Source["avs_check"]
		assert.False(t, leaked, "only card metadata fields are kept")
	})

	t.Run("Captured", func(t *testing.T) {
		action := adapter.GetWebhookActionAndData(webhookBody(t, map[string]interface{}{
			"total_authorized":     1000,
			"total_captured":       1000,
			"available_to_capture": 0,
		}))

		assert.Equal(t, classifier.ActionCaptured, action.Action)
		assert.Equal(t, int64(1000), action.Amount)
	})

	t.Run("Indecisive balances map to not_supported", func(t *testing.T) {
		action := adapter.GetWebhookActionAndData(webhookBody(t, map[string]interface{}{
			"total_authorized":     1000,
			"total_captured":       400,
			"available_to_capture": 600,
		}))

		assert.Equal(t, classifier.ActionNotSupported, action.Action)
	})

	t.Run("Malformed payload", func(t *testing.T) {
		action := adapter.GetWebhookActionAndData([]byte(`{"data": "not an object"`))
		assert.Equal(t, classifier.ActionFailed, action.Action)
	})

	t.Run("Missing balances", func(t *testing.T) {
		action := adapter.GetWebhookActionAndData([]byte(`{"type":"payment_approved","data":{"id":"pay_123"}}`))
		assert.Equal(t, classifier.ActionFailed, action.Action)
	})
}

func TestAdapter_VerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"type":"payment_captured"}`)

	t.Run("No secret configured", func(t *testing.T) {
		adapter := newTestAdapter(t, config.Checkout{}, http.NotFoundHandler())
		assert.True(t, adapter.VerifyWebhookSignature(body, ""))
		assert.True(t, adapter.VerifyWebhookSignature(body, "anything"))
	})

	t.Run("Secret configured", func(t *testing.T) {
		adapter := newTestAdapter(t, config.Checkout{WebhookSecret: "whsec_test"}, http.NotFoundHandler())

		mac := hmac.New(sha256.New, []byte("whsec_test"))
		mac.Write(body)
		valid := hex.EncodeToString(mac.Sum(nil))

		assert.True(t, adapter.VerifyWebhookSignature(body, valid))
		assert.False(t, adapter.VerifyWebhookSignature(body, ""), "missing signature fails when a secret is set")
		assert.False(t, adapter.VerifyWebhookSignature(body, "deadbeef"))
		assert.False(t, adapter.VerifyWebhookSignature([]byte(`tampered`), valid))
	})
}
