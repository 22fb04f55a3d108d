package webhook

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	custom_context "github.com/yourorg/checkout-reconciler/internal/context"
	"github.com/yourorg/checkout-reconciler/internal/metrics"
	"github.com/yourorg/checkout-reconciler/internal/provider"
	"github.com/yourorg/checkout-reconciler/internal/reporting"
)

// signatureHeader is the gateway's webhook signature header.
const signatureHeader = "Cko-Signature"

// Handler is the gin handler for POST /store/webhooks/:provider.
type Handler struct {
	registry  *provider.Registry
	processor *Processor
	reporter  *reporting.Reporter
}

// NewHandler creates the webhook handler.
func NewHandler(registry *provider.Registry, processor *Processor, reporter *reporting.Reporter) *Handler {
	if registry == nil {
		panic("provider registry cannot be nil")
	}
	if processor == nil {
		panic("processor cannot be nil")
	}
	if reporter == nil {
		panic("reporter cannot be nil")
	}
	return &Handler{registry: registry, processor: processor, reporter: reporter}
}

// Handle ingests one webhook. The gateway gets a success response whenever
// processing completes without error; undecodable events are recorded and
// dropped rather than erroring, so the gateway does not redeliver garbage
// forever.
func (h *Handler) Handle(c *gin.Context) {
	providerID := c.Param("provider")

	prov, err := h.registry.Get(providerID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown payment provider: " + providerID})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.WebhookFailuresTotal.WithLabelValues(providerID, "read_error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	if !prov.VerifyWebhookSignature(body, c.GetHeader(signatureHeader)) {
		log.Printf("webhook: signature verification failed for provider %s", providerID)
		metrics.WebhookFailuresTotal.WithLabelValues(providerID, "bad_signature").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
		return
	}

	action := prov.GetWebhookActionAndData(body)
	metrics.WebhookActionsTotal.WithLabelValues(providerID, string(action.Action)).Inc()

	if !actionNeedsSession(action.Action) {
		// Dropped by design; visible only through metrics and the report.
		h.reporter.Record(reporting.Entry{
			Provider:  providerID,
			SessionID: action.SessionID,
			Action:    string(action.Action),
			ErrorCode: "WEBHOOK_EVENT_DROPPED",
		})
		c.JSON(http.StatusOK, gin.H{"message": "Success"})
		return
	}

	if action.SessionID == "" {
		metrics.WebhookFailuresTotal.WithLabelValues(providerID, "missing_session_id").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing payment session id in webhook metadata"})
		return
	}

	tc := custom_context.NewTraceContext()
	if err := h.processor.Process(c.Request.Context(), tc, prov, action); err != nil {
		log.Printf("webhook: processing error: %v", err)
		metrics.WebhookFailuresTotal.WithLabelValues(providerID, "processing_error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Success"})
}
