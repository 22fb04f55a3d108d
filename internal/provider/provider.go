// Package provider defines the canonical payment lifecycle implemented by
// each gateway adapter, and the registry that selects an adapter by its
// identifier. Adapters handle all gateway-specific API calls, including
// serialization, retry, idempotency, and error mapping, normalizing raw
// gateway responses into the canonical vocabulary.
package provider

import (
	"errors"
	"fmt"

	"github.com/yourorg/checkout-reconciler/internal/classifier"
	"github.com/yourorg/checkout-reconciler/internal/context"
)

// Address is a billing address forwarded to the hosted session.
type Address struct {
	Line1       string `json:"line1,omitempty"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Zip         string `json:"zip,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// Billing groups the billing details attached to a hosted session.
type Billing struct {
	Address *Address `json:"address,omitempty"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
}

// InitiateInput is the request to create a hosted payment session.
// Amount is in minor units.
type InitiateInput struct {
	CartID     string
	Amount     int64
	Currency   string
	Token      string
	SuccessURL string
	FailureURL string
	Billing    *Billing
	Metadata   map[string]string
}

// InitiateOutput carries the gateway-assigned session id plus the raw
// session object for the storefront.
type InitiateOutput struct {
	ID   string
	Data map[string]interface{}
}

// AuthorizeContext is the context passed to AuthorizePayment. All fields are
// optional; the gateway-assigned payment id and card source metadata arrive
// from the webhook payload, and StatusOverride carries the status the
// classifier derived for the session.
type AuthorizeContext struct {
	PaymentID      string
	Source         map[string]interface{}
	StatusOverride classifier.Status
}

// AuthorizeOutput is the status transition the adapter proposes for the
// local session, plus the opaque data blob to merge onto it.
type AuthorizeOutput struct {
	Status classifier.Status
	Data   map[string]interface{}
}

// WebhookAction is the normalized result of translating a raw webhook
// payload. Action is always set; a payload the adapter cannot make sense of
// yields ActionFailed rather than an error.
type WebhookAction struct {
	Action    classifier.Action
	Status    classifier.Status
	SessionID string
	PaymentID string
	Amount    int64
	Source    map[string]interface{}
}

// PaymentProvider is the interface implemented by each payment gateway
// adapter. Mutating operations take the opaque session data blob and require
// the gateway-assigned payment id inside it — the gateway is the source of
// truth for payment object identity; the local session id only round-trips
// through the metadata attached at session creation.
type PaymentProvider interface {
	// Identifier returns the provider's registry key (e.g. "checkout-com").
	Identifier() string

	// InitiatePayment creates a hosted payment session at the gateway.
	InitiatePayment(tc context.TraceContext, input InitiateInput) (InitiateOutput, error)

	// AuthorizePayment records the gateway-reported authorization on the
	// local session. It never fails on missing optional context fields; with
	// no status override the proposed status is authorized.
	AuthorizePayment(tc context.TraceContext, authCtx AuthorizeContext) (AuthorizeOutput, error)

	// CapturePayment captures the full payment amount.
	CapturePayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error)

	// CancelPayment voids the payment.
	CancelPayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error)

	// DeletePayment best-effort voids the payment. It never fails the
	// caller: a payment already in a terminal state cannot be voided and
	// that is fine — the desired end state is already satisfied.
	DeletePayment(tc context.TraceContext, data map[string]interface{}) error

	// RefundPayment refunds the payment. Amount 0 means a full refund.
	RefundPayment(tc context.TraceContext, data map[string]interface{}, amount int64) (map[string]interface{}, error)

	// GetPaymentStatus maps the gateway's payment status to the canonical one.
	GetPaymentStatus(tc context.TraceContext, data map[string]interface{}) (classifier.Status, error)

	// RetrievePayment fetches the raw gateway payment object.
	RetrievePayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error)

	// UpdatePayment refreshes the session data blob. The hosted flow owns
	// the payment details, so there is nothing to push to the gateway.
	UpdatePayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error)

	// GetWebhookActionAndData translates a raw webhook payload into a
	// canonical action. Total: a malformed payload yields ActionFailed.
	GetWebhookActionAndData(payload []byte) WebhookAction

	// VerifyWebhookSignature checks the gateway signature header against the
	// raw body. Returns true when no webhook secret is configured.
	VerifyWebhookSignature(body []byte, signature string) bool
}

// InvalidDataError marks a validation failure the caller must correct, such
// as a missing gateway payment id. Not retryable.
type InvalidDataError struct {
	Msg string
}

func (e *InvalidDataError) Error() string {
	return "invalid data: " + e.Msg
}

// IsInvalidData reports whether err is a validation error.
func IsInvalidData(err error) bool {
	var ide *InvalidDataError
	return errors.As(err, &ide)
}

// Registry holds the configured providers keyed by identifier.
type Registry struct {
	providers map[string]PaymentProvider
}

// NewRegistry creates a registry with the given providers.
func NewRegistry(providers ...PaymentProvider) *Registry {
	r := &Registry{providers: make(map[string]PaymentProvider)}
	for _, p := range providers {
		r.providers[p.Identifier()] = p
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p PaymentProvider) {
	r.providers[p.Identifier()] = p
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (PaymentProvider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider: no adapter registered for %q", id)
	}
	return p, nil
}
