// Package billing provides Stripe billing integration.
//
// This file parses raw Stripe webhook events into the small set of
// typed events the reconciler understands, and maps Stripe's
// subscription statuses onto ours.
package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/quill-app/quill/internal/domain"
)

// Event types we act on. Everything else is acknowledged and ignored.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)

// CheckoutCompleted is a completed Stripe Checkout session.
type CheckoutCompleted struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	// UserRef carries our user ID, set as client_reference_id when the
	// checkout session was created.
	UserRef string
	// Plan is the purchased plan from the session metadata; empty if
	// the session carried no recognisable plan.
	Plan domain.Plan
	// CompletedAt is when the session completed, taken from the event
	// timestamp.
	CompletedAt time.Time
}

// SubscriptionChanged is a subscription create/update/delete. The same
// shape serves all three; Deleted marks the terminal event.
type SubscriptionChanged struct {
	CustomerID        string
	SubscriptionID    string
	PriceID           string
	Status            domain.SubscriptionStatus
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	Deleted           bool
}

// InvoicePaid is a succeeded or failed invoice payment.
type InvoicePaid struct {
	CustomerID string
	Succeeded  bool
	PaidAt     time.Time
	// PeriodEnd is the end of the billing period the invoice covers,
	// nil when the payload carries none.
	PeriodEnd *time.Time
}

// MapSubscriptionStatus translates a Stripe subscription status into
// our subscription state machine. Unknown or transitional statuses map
// to inactive, which never grants paid entitlements.
func MapSubscriptionStatus(s stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive:
		return domain.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue:
		return domain.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid:
		return domain.SubscriptionStatusCanceled
	default:
		// incomplete, incomplete_expired, trialing, paused, or anything
		// Stripe adds later.
		return domain.SubscriptionStatusInactive
	}
}

// ParseCheckoutCompleted extracts a CheckoutCompleted from a raw event.
func ParseCheckoutCompleted(event stripe.Event) (CheckoutCompleted, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return CheckoutCompleted{}, fmt.Errorf("parse checkout session: %w", err)
	}

	out := CheckoutCompleted{
		SessionID:   session.ID,
		UserRef:     session.ClientReferenceID,
		CompletedAt: time.Unix(event.Created, 0).UTC(),
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	if p := domain.Plan(session.Metadata["plan"]); p.Valid() {
		out.Plan = p
	}
	return out, nil
}

// ParseSubscriptionChanged extracts a SubscriptionChanged from a raw
// customer.subscription.* event.
func ParseSubscriptionChanged(event stripe.Event) (SubscriptionChanged, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return SubscriptionChanged{}, fmt.Errorf("parse subscription event: %w", err)
	}

	out := SubscriptionChanged{
		SubscriptionID:    sub.ID,
		Status:            MapSubscriptionStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Deleted:           event.Type == EventSubscriptionDeleted,
	}
	if out.Deleted {
		out.Status = domain.SubscriptionStatusCanceled
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	return out, nil
}

// ParseInvoicePaid extracts an InvoicePaid from an invoice.payment_*
// event.
func ParseInvoicePaid(event stripe.Event) (InvoicePaid, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return InvoicePaid{}, fmt.Errorf("parse invoice event: %w", err)
	}

	out := InvoicePaid{
		Succeeded: event.Type == EventPaymentSucceeded,
		PaidAt:    time.Unix(event.Created, 0).UTC(),
	}
	if invoice.Customer != nil {
		out.CustomerID = invoice.Customer.ID
	}

	// The subscription line carries the paid-for period; the invoice's
	// own period is a fallback for payloads without line detail.
	var end int64
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Period != nil && line.Period.End > end {
				end = line.Period.End
			}
		}
	}
	if end == 0 {
		end = invoice.PeriodEnd
	}
	if end > 0 {
		t := time.Unix(end, 0).UTC()
		out.PeriodEnd = &t
	}
	return out, nil
}
