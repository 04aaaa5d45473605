// Package handler contains the HTTP handlers for the Quill API.
//
// This file implements subscription billing endpoints.
//
// Routes:
//   - POST /api/billing/checkout   -> Checkout
//   - POST /api/billing/portal     -> Portal
//   - POST /api/billing/cancel     -> Cancel
//   - POST /api/billing/reactivate -> Reactivate
package handler

import (
	"log/slog"
	"net/http"

	"github.com/quill-app/quill/internal/auth"
	"github.com/quill-app/quill/internal/billing"
	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/metrics"
	"github.com/quill-app/quill/internal/service"
)

// BillingHandler handles checkout, portal, and subscription lifecycle
// requests. billing may be nil when Stripe is not configured; all
// endpoints then answer 503.
type BillingHandler struct {
	billing     billing.Service
	userService service.UserService
	baseURL     string
	logger      *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(billingService billing.Service, userService service.UserService, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:     billingService,
		userService: userService,
		baseURL:     baseURL,
		logger:      logger,
	}
}

func (h *BillingHandler) configured(w http.ResponseWriter, r *http.Request, op string) bool {
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(nil, op))
		return false
	}
	return true
}

// Checkout handles POST /api/billing/checkout: starts a Stripe Checkout
// session for a paid plan and returns the redirect URL.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing_checkout"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if !h.configured(w, r, op) {
		return
	}

	var req struct {
		Plan     string `json:"plan"`
		Interval string `json:"interval"` // "monthly" (default) or "yearly"
	}
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	plan := domain.Plan(req.Plan)
	if !plan.Valid() || plan == domain.PlanFree {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "A paid plan (basic, pro, elite) is required"))
		return
	}
	interval := req.Interval
	if interval == "" {
		interval = "monthly"
	}
	if interval != "monthly" && interval != "yearly" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Interval must be monthly or yearly"))
		return
	}

	priceID := h.billing.PriceIDFor(plan, interval)
	if priceID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "This plan is not available for purchase"))
		return
	}

	// Reuse the existing Stripe customer; create one on first checkout.
	customerID := user.Subscription.StripeCustomerID
	if customerID == "" {
		var err error
		customerID, err = h.billing.CreateCustomer(user.Email, user.Name)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to create billing customer"))
			return
		}
		if err := h.userService.UpdateStripeCustomer(r.Context(), user.ID, customerID); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	url, err := h.billing.CreateCheckoutSession(
		customerID,
		priceID,
		user.ID.String(),
		h.baseURL+"/billing/success",
		h.baseURL+"/billing/cancelled",
	)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to create checkout session"))
		return
	}

	metrics.CheckoutSessionsCreated.WithLabelValues(string(plan)).Inc()
	h.logger.Info("checkout session created", "user_id", user.ID, "plan", plan, "interval", interval)
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Portal handles POST /api/billing/portal: opens the Stripe customer
// portal for self-service billing management.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing_portal"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if !h.configured(w, r, op) {
		return
	}
	if user.Subscription.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No billing account yet"))
		return
	}

	url, err := h.billing.CreatePortalSession(user.Subscription.StripeCustomerID, h.baseURL+"/settings")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to create portal session"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Cancel handles POST /api/billing/cancel: flags the subscription to
// end at the period boundary. Access continues until then.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing_cancel"
	h.updateCancelFlag(w, r, op, true)
}

// Reactivate handles POST /api/billing/reactivate: clears a pending
// cancellation before the period ends.
func (h *BillingHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing_reactivate"
	h.updateCancelFlag(w, r, op, false)
}

func (h *BillingHandler) updateCancelFlag(w http.ResponseWriter, r *http.Request, op string, cancel bool) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if !h.configured(w, r, op) {
		return
	}
	if user.Subscription.StripeSubID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "No active subscription"))
		return
	}

	var err error
	if cancel {
		err = h.billing.CancelSubscription(user.Subscription.StripeSubID)
	} else {
		err = h.billing.ReactivateSubscription(user.Subscription.StripeSubID)
	}
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to update subscription"))
		return
	}

	// The authoritative state lands via webhook; this is an optimistic
	// local echo so the UI reflects the click immediately.
	h.logger.Info("subscription cancel flag updated", "user_id", user.ID, "cancel_at_period_end", cancel)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelAtPeriodEnd": cancel})
}
