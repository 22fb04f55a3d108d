// Package checkoutcom implements the canonical payment lifecycle against the
// Checkout.com API, including the webhook-payload-to-action translation.
package checkoutcom

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"

	"github.com/yourorg/checkout-reconciler/internal/classifier"
	"github.com/yourorg/checkout-reconciler/internal/config"
	"github.com/yourorg/checkout-reconciler/internal/context"
	"github.com/yourorg/checkout-reconciler/internal/provider"
)

// Identifier is the registry key for this adapter.
const Identifier = "checkout-com"

// MetadataSessionIDKey is the metadata key that carries the local payment
// session id through the gateway and back in webhook payloads.
const MetadataSessionIDKey = "medusa_payment_session_id"

// Adapter is the Checkout.com implementation of provider.PaymentProvider.
type Adapter struct {
	client *Client
	cfg    config.Checkout
}

// NewAdapter creates the adapter around an already-configured Client.
func NewAdapter(client *Client, cfg config.Checkout) *Adapter {
	if client == nil {
		panic("checkoutcom client cannot be nil")
	}
	return &Adapter{client: client, cfg: cfg}
}

// Identifier implements provider.PaymentProvider.
func (a *Adapter) Identifier() string {
	return Identifier
}

// InitiatePayment creates a hosted payment session with capture disabled and
// 3DS enabled, carrying the local session/collection ids in metadata so they
// round-trip through the gateway's webhook payloads.
func (a *Adapter) InitiatePayment(tc context.TraceContext, input provider.InitiateInput) (provider.InitiateOutput, error) {
	req := paymentSessionRequest{
		Amount:                input.Amount,
		Currency:              strings.ToUpper(input.Currency),
		SuccessURL:            input.SuccessURL,
		FailureURL:            input.FailureURL,
		Capture:               false,
		ThreeDS:               threeDSConfig{Enabled: true},
		EnabledPaymentMethods: []string{"card"},
		ProcessingChannelID:   a.cfg.ProcessingChannelID,
		Metadata:              input.Metadata,
	}
	if input.Billing != nil {
		req.Billing = input.Billing
	}

	response, err := a.client.RequestPaymentSession(tc, req)
	if err != nil {
		log.Printf("checkoutcom: error initiating payment session: %v", err)
		return provider.InitiateOutput{}, err
	}

	id, _ := response["id"].(string)
	return provider.InitiateOutput{ID: id, Data: response}, nil
}

// AuthorizePayment proposes the classified status for the local session and
// assembles the opaque data blob from the webhook-supplied context. No
// gateway call is made here: authorization already happened inside the
// hosted flow, this step only records its outcome.
func (a *Adapter) AuthorizePayment(tc context.TraceContext, authCtx provider.AuthorizeContext) (provider.AuthorizeOutput, error) {
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

// paymentID pulls the gateway payment id out of the session data blob.
func paymentID(data map[string]interface{}) string {
	if data == nil {
		return ""
	}
	id, _ := data["paymentId"].(string)
	return id
}

// CapturePayment captures the full payment amount.
func (a *Adapter) CapturePayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error) {
	id := paymentID(data)
	if id == "" {
		return nil, &provider.InvalidDataError{Msg: "missing payment ID in capture request"}
	}

	response, err := a.client.CapturePayment(tc, id)
	if err != nil {
		log.Printf("checkoutcom: error capturing payment %s: %v", id, err)
		return nil, err
	}
	return response, nil
}

// CancelPayment voids the payment.
func (a *Adapter) CancelPayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error) {
	id := paymentID(data)
	if id == "" {
		return nil, &provider.InvalidDataError{Msg: "missing payment ID in cancel request"}
	}

	response, err := a.client.VoidPayment(tc, id)
	if err != nil {
		log.Printf("checkoutcom: error canceling payment %s: %v", id, err)
		return nil, err
	}
	return response, nil
}

// DeletePayment best-effort voids the payment. A payment already in a
// terminal state cannot be voided, so void failures are logged and
// swallowed; deletion always reports success.
func (a *Adapter) DeletePayment(tc context.TraceContext, data map[string]interface{}) error {
	id := paymentID(data)
	if id == "" {
		log.Printf("checkoutcom: no payment ID to delete, skipping")
		return nil
	}

	if _, err := a.client.VoidPayment(tc, id); err != nil {
		log.Printf("checkoutcom: warning: could not void payment %s during deletion, it may already be completed or canceled: %v", id, err)
	}
	return nil
}

// RefundPayment refunds the payment.
func (a *Adapter) RefundPayment(tc context.TraceContext, data map[string]interface{}, amount int64) (map[string]interface{}, error) {
	id := paymentID(data)
	if id == "" {
		return nil, &provider.InvalidDataError{Msg: "missing payment ID in refund request"}
	}

	response, err := a.client.RefundPayment(tc, id, amount)
	if err != nil {
		log.Printf("checkoutcom: error refunding payment %s: %v", id, err)
		return nil, err
	}
	return response, nil
}

// GetPaymentStatus maps the gateway status string to the canonical status.
func (a *Adapter) GetPaymentStatus(tc context.TraceContext, data map[string]interface{}) (classifier.Status, error) {
	id := paymentID(data)
	if id == "" {
		return "", &provider.InvalidDataError{Msg: "missing payment ID in status request"}
	}

	details, err := a.client.GetPayment(tc, id)
	if err != nil {
		log.Printf("checkoutcom: error getting payment status for %s: %v", id, err)
		return "", err
	}

	gatewayStatus, _ := details["status"].(string)
	switch gatewayStatus {
	case "Authorized":
		return classifier.StatusAuthorized, nil
	case "Captured":
		return classifier.StatusCaptured, nil
	case "Declined", "Expired", "Canceled":
		return classifier.StatusCanceled, nil
	default:
		return classifier.StatusPending, nil
	}
}

// RetrievePayment fetches the raw gateway payment object.
func (a *Adapter) RetrievePayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error) {
	id := paymentID(data)
	if id == "" {
		return map[string]interface{}{}, nil
	}

	response, err := a.client.GetPayment(tc, id)
	if err != nil {
		log.Printf("checkoutcom: error retrieving payment %s: %v", id, err)
		return nil, err
	}
	return response, nil
}

// UpdatePayment echoes the session data. The hosted flow owns the payment
// details end to end, so there is nothing to push to the gateway.
func (a *Adapter) UpdatePayment(tc context.TraceContext, data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		return map[string]interface{}{}, nil
	}
	return data, nil
}

// webhookEnvelope is the gateway webhook payload shape this adapter consumes.
type webhookEnvelope struct {
	Type string         `json:"type"`
	Data webhookPayment `json:"data"`
}

type webhookPayment struct {
	ID       string                      `json:"id"`
	Metadata map[string]interface{}      `json:"metadata"`
	Source   map[string]interface{}      `json:"source"`
	Balances *classifier.BalanceSnapshot `json:"balances"`
}

// GetWebhookActionAndData translates a raw webhook payload into a canonical
// action via the balance classifier. It is total: a payload that cannot be
// parsed, or one without a balance object, yields ActionFailed so a
// malformed webhook can never crash the ingestion path.
func (a *Adapter) GetWebhookActionAndData(payload []byte) provider.WebhookAction {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.Printf("checkoutcom: error parsing webhook payload: %v", err)
		return provider.WebhookAction{Action: classifier.ActionFailed}
	}
	if envelope.Data.Balances == nil {
		log.Printf("checkoutcom: webhook payload for %q has no balances", envelope.Data.ID)
		return provider.WebhookAction{Action: classifier.ActionFailed}
	}

	amountConfig := classifier.Classify(envelope.Data.Balances)

	sessionID := ""
	if raw, ok := envelope.Data.Metadata[MetadataSessionIDKey]; ok {
		sessionID, _ = raw.(string)
	}

	return provider.WebhookAction{
		Action:    classifier.ActionFor(amountConfig.Status),
		Status:    amountConfig.Status,
		SessionID: sessionID,
		PaymentID: envelope.Data.ID,
		Amount:    amountConfig.Amount,
		Source:    cardSource(envelope.Data.Source),
	}
}

// cardSource keeps only the card metadata fields the local session stores.
func cardSource(source map[string]interface{}) map[string]interface{} {
	if source == nil {
		return nil
	}
	out := make(map[string]interface{})
	for _, key := range []string{"type", "expiry_month", "expiry_year", "name", "scheme", "last_4", "bin"} {
		if v, ok := source[key]; ok {
			out[key] = v
		}
	}
	return out
}

// VerifyWebhookSignature checks the Cko-Signature header: an HMAC-SHA256 of
// the raw body keyed with the webhook secret. With no secret configured
// every payload passes; with one configured a missing or wrong signature
// fails.
func (a *Adapter) VerifyWebhookSignature(body []byte, signature string) bool {
	if a.cfg.WebhookSecret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
