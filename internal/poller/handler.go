package poller

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler terminates the gateway's hosted-page redirect. The gateway sends
// the browser back with cko-session-id and the cart_id we appended to the
// success URL; the handler polls the cart and forwards the browser to the
// order confirmation page or back to the payment step.
type Handler struct {
	poller         *Poller
	storefrontBase string
}

// NewHandler creates a redirect handler. storefrontBase is the absolute
// base URL of the storefront, without a trailing slash.
func NewHandler(p *Poller, storefrontBase string) *Handler {
	if p == nil {
		panic("poller cannot be nil")
	}
	return &Handler{poller: p, storefrontBase: storefrontBase}
}

// Handle serves GET /payment/checkout/processor.
func (h *Handler) Handle(c *gin.Context) {
	ckoSessionID := c.Query("cko-session-id")
	cartID := c.Query("cart_id")

	if ckoSessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing cko-session-id"})
		return
	}

	result, err := h.poller.Run(c.Request.Context(), cartID)
	if err != nil {
		log.Printf("poller handler: run failed for cart %s: %v", cartID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to reconcile payment"})
		return
	}

	switch {
	case result.State == StateResolved && !result.OrderMissing:
		target := fmt.Sprintf("%s/%s/order/%s/confirmed",
			h.storefrontBase, result.Order.ShippingCountryCode, result.Order.ID)
		c.Redirect(http.StatusTemporaryRedirect, target)

	case result.State == StateResolved:
		// Authorized, but the order has not been created yet. Surface the
		// race instead of pretending the order exists.
		c.JSON(http.StatusBadRequest, gin.H{"message": "Order not found for cart"})

	default:
		// Timed out waiting for authorization. Send the shopper back to the
		// payment step without touching any state; the webhook remains the
		// authoritative update path.
		c.Redirect(http.StatusTemporaryRedirect, h.storefrontBase+"/checkout?step=payment")
	}
}
