// Package mock provides a PaymentProvider test double. Behavior is
// overridden per test through the exported Func fields; undefined funcs fall
// back to benign defaults.
package mock

import (
	"github.com/google/uuid"

	"github.com/yourorg/checkout-reconciler/internal/classifier"
	"github.com/yourorg/checkout-reconciler/internal/context"
	"github.com/yourorg/checkout-reconciler/internal/provider"
)

// Provider is a mock implementation of the provider.PaymentProvider interface.
type Provider struct {
	Name string

	InitiateFunc  func(tc context.TraceContext, input provider.InitiateInput) (provider.InitiateOutput, error)
	AuthorizeFunc func(tc context.TraceContext, authCtx provider.AuthorizeContext) (provider.AuthorizeOutput, error)
	CaptureFunc   func(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error)
	CancelFunc    func(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error)
	DeleteFunc    func(tc context.TraceContext, data map[string]interface{}) error
	RefundFunc    func(tc context.TraceContext, data map[string]interface{}, amount int64) (map[string]interface{}, error)
	StatusFunc    func(tc context.TraceContext, data map[string]interface{}) (classifier.Status, error)
	RetrieveFunc  func(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error)
	UpdateFunc    func(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error)
	WebhookFunc   func(payload []byte) provider.WebhookAction
	SignatureFunc func(body []byte, signature string) bool
}

// NewProvider creates a mock provider with the given identifier.
func NewProvider(name string) *Provider {
	return &Provider{Name: name}
}

func (m *Provider) Identifier() string {
	return m.Name
}

func (m *Provider) InitiatePayment(tc context.TraceContext, input provider.InitiateInput) (provider.InitiateOutput, error) {
	if m.InitiateFunc != nil {
		return m.InitiateFunc(tc, input)
	}
	return provider.InitiateOutput{
		ID:   "ps_" + uuid.NewString(),
		Data: map[string]interface{}{"mock": true},
	}, nil
}

func (m *Provider) AuthorizePayment(tc context.TraceContext, authCtx provider.AuthorizeContext) (provider.AuthorizeOutput, error) {
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(tc, authCtx)
	}
	status := authCtx.StatusOverride
	if status == "" {
		status = classifier.StatusAuthorized
	}
	data := map[string]interface{}{"success": true}
	if authCtx.PaymentID != "" {
		data["paymentId"] = authCtx.PaymentID
	}
	for k, v := range authCtx.Source {
		data[k] = v
	}
	return provider.AuthorizeOutput{Status: status, Data: data}, nil
}

func (m *Provider) CapturePayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error) {
	if m.CaptureFunc != nil {
		return m.CaptureFunc(tc, data)
	}
	return data, nil
}

func (m *Provider) CancelPayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(tc, data)
	}
	return data, nil
}

func (m *Provider) DeletePayment(tc context.TraceContext, data map[string]interface{}) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(tc, data)
	}
	return nil
}

func (m *Provider) RefundPayment(tc context.TraceContext, data map[string]interface{}, amount int64) (map[string]interface{}, error) {
	if m.RefundFunc != nil {
		return m.RefundFunc(tc, data, amount)
	}
	return data, nil
}

func (m *Provider) GetPaymentStatus(tc context.TraceContext, data map[string]interface{}) (classifier.Status, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(tc, data)
	}
	return classifier.StatusPending, nil
}

func (m *Provider) RetrievePayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error) {
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(tc, data)
	}
	return data, nil
}

func (m *Provider) UpdatePayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(tc, data)
	}
	return data, nil
}

func (m *Provider) GetWebhookActionAndData(payload []byte) provider.WebhookAction {
	if m.WebhookFunc != nil {
		return m.WebhookFunc(payload)
	}
	return provider.WebhookAction{Action: classifier.ActionNotSupported}
}

func (m *Provider) VerifyWebhookSignature(body []byte, signature string) bool {
	if m.SignatureFunc != nil {
		return m.SignatureFunc(body, signature)
	}
	return true
}
