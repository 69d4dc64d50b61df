package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/gateway"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/utils"
)

const maxWebhookBody = 64 << 10

// SettlementDispatcher hands a webhook-driven settlement to the worker.
type SettlementDispatcher interface {
	DispatchSettlement(ctx context.Context, req *models.SettlementRequest) error
}

type WebhookHandler struct {
	dispatcher SettlementDispatcher
	secret     string
	log        *logger.Logger
}

func NewWebhookHandler(dispatcher SettlementDispatcher, secret string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, secret: secret, log: log}
}

// HandleStripeWebhook verifies the event and queues settlement of succeeded
// payment intents created by checkout.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Failed to read request body"))
		return
	}

	event, err := gateway.ParseWebhook(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			h.log.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Rejected webhook from %s: %v", c.ClientIP(), err))
		} else {
			h.log.Error("WEBHOOK", err.Error())
		}
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid webhook"))
		return
	}

	if event.Type != "payment_intent.succeeded" || event.IntentID == "" {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	paymentID := event.Metadata[gateway.MetaPaymentID]
	studio := event.Metadata[gateway.MetaStudio]
	if paymentID == "" || studio == "" {
		// Not created by checkout.
		h.log.Debug("WEBHOOK", fmt.Sprintf("Ignoring intent %s without booking metadata", event.IntentID))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	req := &models.SettlementRequest{
		StudioSlug:      studio,
		PaymentIntentID: event.IntentID,
		PaymentID:       paymentID,
		EventID:         event.ID,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := h.dispatcher.DispatchSettlement(c.Request.Context(), req); err != nil {
		// Stripe retries non-2xx deliveries.
		h.log.Error("WEBHOOK", fmt.Sprintf("Failed to dispatch settlement for payment %s: %v", paymentID, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to process webhook"))
		return
	}

	h.log.LogPayment("WEBHOOK", paymentID, fmt.Sprintf("Settlement dispatched for intent %s (event %s)", event.IntentID, event.ID))
	c.JSON(http.StatusOK, gin.H{"received": true})
}
