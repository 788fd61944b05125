package routes

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"luxe-escrow-server/payments"
	"luxe-escrow-server/services"
)

// WebhookHandler receives Stripe events
type WebhookHandler struct {
	gateway    payments.Gateway
	escrow     *services.EscrowService
	onboarding *services.OnboardingService
	enabled    bool
}

func NewWebhookHandler(gateway payments.Gateway, escrow *services.EscrowService, onboarding *services.OnboardingService, enabled bool) *WebhookHandler {
	if !enabled {
		log.Println("⚠️ STRIPE_WEBHOOK_SECRET not set, Stripe webhooks disabled")
	}
	return &WebhookHandler{gateway: gateway, escrow: escrow, onboarding: onboarding, enabled: enabled}
}

// Stripe handles POST /api/webhooks/stripe. The raw body is needed for signature checks.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	if !h.enabled {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Webhooks are not configured"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read request body"})
		return
	}

	event, err := h.gateway.ParseWebhookEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			log.Printf("🚫 Rejected Stripe webhook with invalid signature from %s", c.ClientIP())
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	ctx := c.Request.Context()
	switch {
	case event.Type == payments.EventAccountUpdated && event.Account != nil:
		err = h.onboarding.HandleAccountUpdated(ctx, event.Account)
	case event.Type == payments.EventPaymentIntentCanceled && event.PaymentIntent != nil:
		err = h.escrow.HandleIntentCanceled(ctx, event.PaymentIntent.ID)
	default:
		log.Printf("🔍 Ignoring Stripe event %s (%s)", event.ID, event.Type)
	}
	if err != nil {
		// A non-2xx answer makes Stripe redeliver the event.
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
