package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/quill-app/quill/internal/billing"
	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/repository"
)

// goodSignature is the only Stripe-Signature header stubBilling accepts.
const goodSignature = "t=1,v1=valid"

// stubBilling implements billing.Service for webhook tests. Signature
// verification is keyed on the header value; everything else is inert.
type stubBilling struct {
	event stripe.Event
}

func (s *stubBilling) CreateCustomer(email, name string) (string, error) { return "cus_stub", nil }

func (s *stubBilling) CreateCheckoutSession(customerID, priceID, userID, successURL, cancelURL string) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubBilling) CreatePortalSession(customerID, returnURL string) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubBilling) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	return &stripe.Subscription{ID: subscriptionID}, nil
}

func (s *stubBilling) CancelSubscription(subscriptionID string) error     { return nil }
func (s *stubBilling) ReactivateSubscription(subscriptionID string) error { return nil }

func (s *stubBilling) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if signature != goodSignature {
		return stripe.Event{}, errors.New("signature mismatch")
	}
	return s.event, nil
}

func (s *stubBilling) PlanForPriceID(priceID string) (domain.Plan, bool) { return "", false }

func (s *stubBilling) PriceIDFor(plan domain.Plan, interval string) string { return "" }

func newWebhookTest(t *testing.T, event stripe.Event) (*WebhookHandler, *repository.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := repository.NewMemory()
	svc := &stubBilling{event: event}
	return NewWebhookHandler(svc, billing.NewReconciler(svc, repo, logger), logger), repo
}

func seedWebhookUser(t *testing.T, repo *repository.Memory, customerID string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:    uuid.New(),
		Email: "webhook@example.com",
		Subscription: domain.Subscription{
			Plan:             domain.PlanPro,
			Status:           domain.SubscriptionStatusActive,
			StripeCustomerID: customerID,
		},
	}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func postWebhook(h *WebhookHandler, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, req)
	return rec
}

func deletedEvent(customerID string) stripe.Event {
	return stripe.Event{
		ID:   "evt_1",
		Type: billing.EventSubscriptionDeleted,
		Data: &stripe.EventData{Raw: []byte(`{
			"id": "sub_1",
			"status": "canceled",
			"customer": {"id": "` + customerID + `"}
		}`)},
	}
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	h, repo := newWebhookTest(t, deletedEvent("cus_1"))
	u := seedWebhookUser(t, repo, "cus_1")

	rec := postWebhook(h, "t=1,v1=forged")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad signature, got %d", rec.Code)
	}

	// The event inside must not have been applied.
	got, err := repo.GetUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Subscription.Status != domain.SubscriptionStatusActive || got.Subscription.Plan != domain.PlanPro {
		t.Errorf("unverified event must not touch the subscription, got %+v", got.Subscription)
	}
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	h, _ := newWebhookTest(t, deletedEvent("cus_1"))

	rec := postWebhook(h, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a signature header, got %d", rec.Code)
	}
}

func TestWebhook_VerifiedEventApplied(t *testing.T) {
	h, repo := newWebhookTest(t, deletedEvent("cus_1"))
	u := seedWebhookUser(t, repo, "cus_1")

	rec := postWebhook(h, goodSignature)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for a verified event, got %d", rec.Code)
	}

	got, err := repo.GetUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Subscription.Status != domain.SubscriptionStatusCanceled {
		t.Errorf("expected canceled after verified deletion, got %s", got.Subscription.Status)
	}
}

func TestWebhook_BillingUnconfiguredAcks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewWebhookHandler(nil, nil, logger)

	rec := postWebhook(h, goodSignature)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 when billing is unconfigured, got %d", rec.Code)
	}
}
