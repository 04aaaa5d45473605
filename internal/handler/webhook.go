// Package handler contains the HTTP handlers for the Quill API.
//
// This file implements the Stripe webhook endpoint.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it
// directly; authentication is the webhook signature.
package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/quill-app/quill/internal/billing"
)

// maxWebhookBody bounds the webhook payload (64 KB).
const maxWebhookBody = 64 << 10

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing    billing.Service
	reconciler *billing.Reconciler
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, reconciler *billing.Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:    billingService,
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleStripeWebhook verifies and reconciles one Stripe event.
//
// Responses drive Stripe's retry behavior: 2xx acknowledges the event
// (including events we deliberately drop), 4xx rejects bad payloads,
// and 5xx asks for redelivery after a transient failure.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	if err := h.reconciler.HandleEvent(r.Context(), event); err != nil {
		h.logger.Error("webhook reconciliation failed", "error", err, "type", event.Type, "id", event.ID)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
