// Package billing provides Stripe billing integration.
//
// This file implements the webhook reconciler: it folds Stripe events
// into the subscription sub-record on the user profile. Events can
// arrive out of order and more than once, so every write is a merge of
// only the fields the event actually carries, and every handler is
// idempotent.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/metrics"
	"github.com/quill-app/quill/internal/repository"
)

// Reconciler applies verified Stripe events to stored subscriptions.
type Reconciler struct {
	billing Service
	repo    repository.ProfileStore
	logger  *slog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(billing Service, repo repository.ProfileStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{billing: billing, repo: repo, logger: logger}
}

// HandleEvent processes one verified webhook event.
//
// A nil return means the event should be acknowledged to Stripe. That
// includes events for customers we cannot resolve: those are logged and
// dropped, because retrying them can never succeed. A non-nil return
// means a transient failure (store unavailable, malformed payload we
// want redelivered) and the caller should answer with an error status
// so Stripe retries.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) error {
	var err error
	switch event.Type {
	case EventCheckoutCompleted:
		err = r.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		err = r.handleSubscriptionChanged(ctx, event)
	case EventPaymentSucceeded, EventPaymentFailed:
		err = r.handleInvoicePaid(ctx, event)
	default:
		r.logger.Debug("ignoring webhook event", "type", event.Type, "id", event.ID)
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}

	outcome := "processed"
	if err != nil {
		outcome = "error"
	}
	metrics.WebhookEvents.WithLabelValues(string(event.Type), outcome).Inc()
	return err
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	checkout, err := ParseCheckoutCompleted(event)
	if err != nil {
		return err
	}

	user, err := r.resolveCheckoutUser(ctx, checkout)
	if err != nil {
		return err
	}
	if user == nil {
		r.dropUnresolvable(event, checkout.CustomerID)
		return nil
	}

	// Link the billing customer ref first; subsequent subscription and
	// invoice events identify the user only by this ref.
	if checkout.CustomerID != "" && user.Subscription.StripeCustomerID != checkout.CustomerID {
		if err := r.repo.SetStripeCustomerID(ctx, user.ID, checkout.CustomerID); err != nil {
			return err
		}
	}

	status := domain.SubscriptionStatusActive
	patch := domain.SubscriptionPatch{Status: &status}
	if checkout.Plan != "" {
		patch.Plan = &checkout.Plan
	}
	if checkout.SubscriptionID != "" {
		patch.StripeSubID = &checkout.SubscriptionID
		// The checkout payload carries no billing period, so stamp it
		// from the subscription itself. A failed lookup is not fatal:
		// the subscription events refresh the period end anyway.
		if sub, err := r.billing.GetSubscription(checkout.SubscriptionID); err != nil {
			r.logger.Warn("could not fetch subscription for period end",
				"subscription_id", checkout.SubscriptionID, "error", err)
		} else if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			patch.CurrentPeriodEnd = &t
		}
	}
	if err := r.repo.MergeSubscription(ctx, user.ID, patch); err != nil {
		return err
	}

	// A completed checkout means the first invoice was paid. The flag
	// is one-way, so a replayed session cannot re-stamp it.
	first, err := r.repo.MarkFirstPayment(ctx, user.ID, checkout.CompletedAt)
	if err != nil {
		return err
	}
	if first {
		r.logger.Info("first payment recorded", "user_id", user.ID, "paid_at", checkout.CompletedAt)
	}

	r.logger.Info("checkout completed",
		"user_id", user.ID,
		"plan", checkout.Plan,
		"subscription_id", checkout.SubscriptionID,
	)
	return nil
}

func (r *Reconciler) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	change, err := ParseSubscriptionChanged(event)
	if err != nil {
		return err
	}
	if change.CustomerID == "" {
		r.dropUnresolvable(event, "")
		return nil
	}

	user, err := r.userByCustomer(ctx, change.CustomerID)
	if err != nil {
		return err
	}
	if user == nil {
		r.dropUnresolvable(event, change.CustomerID)
		return nil
	}

	patch := domain.SubscriptionPatch{
		Status:            &change.Status,
		CancelAtPeriodEnd: &change.CancelAtPeriodEnd,
	}
	if change.SubscriptionID != "" {
		patch.StripeSubID = &change.SubscriptionID
	}
	if change.CurrentPeriodEnd != nil {
		patch.CurrentPeriodEnd = change.CurrentPeriodEnd
	}
	if change.Deleted {
		// A deleted subscription ends the paid relationship outright:
		// the plan drops to free and a pending cancel-at-period-end
		// flag is cleared with it. A fresh checkout starts over.
		free := domain.PlanFree
		cleared := false
		patch.Plan = &free
		patch.CancelAtPeriodEnd = &cleared
	} else if change.PriceID != "" {
		// The stored plan is only moved when the price resolves to one
		// we sell.
		if plan, ok := r.billing.PlanForPriceID(change.PriceID); ok {
			patch.Plan = &plan
		} else {
			r.logger.Warn("subscription has unknown price",
				"price_id", change.PriceID, "customer_id", change.CustomerID)
		}
	}

	if err := r.repo.MergeSubscription(ctx, user.ID, patch); err != nil {
		return err
	}

	r.logger.Info("subscription reconciled",
		"user_id", user.ID,
		"status", change.Status,
		"deleted", change.Deleted,
	)
	return nil
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	invoice, err := ParseInvoicePaid(event)
	if err != nil {
		return err
	}
	if invoice.CustomerID == "" {
		r.dropUnresolvable(event, "")
		return nil
	}

	user, err := r.userByCustomer(ctx, invoice.CustomerID)
	if err != nil {
		return err
	}
	if user == nil {
		r.dropUnresolvable(event, invoice.CustomerID)
		return nil
	}

	if !invoice.Succeeded {
		status := domain.SubscriptionStatusPastDue
		if err := r.repo.MergeSubscription(ctx, user.ID, domain.SubscriptionPatch{Status: &status}); err != nil {
			return err
		}
		r.logger.Warn("payment failed", "user_id", user.ID, "customer_id", invoice.CustomerID)
		return nil
	}

	// Recovery from past_due; also covers checkout races where the
	// invoice lands before the subscription event. A renewal invoice
	// moves the period end forward.
	status := domain.SubscriptionStatusActive
	patch := domain.SubscriptionPatch{Status: &status}
	if invoice.PeriodEnd != nil {
		patch.CurrentPeriodEnd = invoice.PeriodEnd
	}
	if err := r.repo.MergeSubscription(ctx, user.ID, patch); err != nil {
		return err
	}

	// One-way flag: set once on the first successful payment, never
	// cleared, never re-stamped by replays.
	first, err := r.repo.MarkFirstPayment(ctx, user.ID, invoice.PaidAt)
	if err != nil {
		return err
	}
	if first {
		r.logger.Info("first payment recorded", "user_id", user.ID, "paid_at", invoice.PaidAt)
	}
	return nil
}

// resolveCheckoutUser finds the user for a checkout session, preferring
// the client_reference_id we set when creating the session and falling
// back to the customer ref for sessions created elsewhere.
func (r *Reconciler) resolveCheckoutUser(ctx context.Context, checkout CheckoutCompleted) (*domain.User, error) {
	if checkout.UserRef != "" {
		if id, err := uuid.Parse(checkout.UserRef); err == nil {
			user, err := r.repo.GetUser(ctx, id)
			if err == nil {
				return user, nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
		}
	}
	if checkout.CustomerID != "" {
		return r.userByCustomer(ctx, checkout.CustomerID)
	}
	return nil, nil
}

// userByCustomer looks a user up by billing customer ref. A missing
// user is (nil, nil); only infrastructure failures are errors.
func (r *Reconciler) userByCustomer(ctx context.Context, customerID string) (*domain.User, error) {
	user, err := r.repo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// dropUnresolvable logs an event we cannot attribute to any user. The
// event is acknowledged: Stripe redelivering it would not change the
// outcome.
func (r *Reconciler) dropUnresolvable(event stripe.Event, customerID string) {
	r.logger.Warn("dropping webhook event for unknown customer",
		"type", event.Type,
		"event_id", event.ID,
		"customer_id", customerID,
	)
	metrics.WebhookEvents.WithLabelValues(string(event.Type), "dropped").Inc()
}
