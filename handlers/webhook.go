package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	checkoutSvc "studiobook/services/checkout"
	"studiobook/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// StripeWebhook settles invoices from payment events. The event signature is
// verified against the endpoint secret before anything is trusted; the
// reconciler then verifies the intent's own invoice signature and amount.
func (hb *HandlerBundle) StripeWebhook(c *gin.Context) {
	const maxBodyBytes = 65536
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, "could not read body", "")
		return
	}

	event, err := webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), hb.WebhookSecret)
	if err != nil {
		hb.Logger.Warn("rejected webhook with bad signature", zap.Error(err))
		utils.JSONError(c, http.StatusBadRequest, "invalid signature", "")
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "malformed event payload", "")
			return
		}
		if err := hb.Checkout.ConfirmFromIntent(c.Request.Context(), checkoutSvc.RecordFromIntent(&pi)); err != nil {
			// Acknowledged with an error status so the processor retries;
			// reconciliation failures have already alerted the operator.
			hb.respondError(c, err)
			return
		}
		hb.invalidateTimetable(c.Request.Context())
	default:
		hb.Logger.Debug("ignoring webhook event", zap.String("type", string(event.Type)))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
