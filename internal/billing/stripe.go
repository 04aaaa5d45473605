// Package billing provides Stripe billing integration for subscription
// management: checkout, the customer portal, and webhook reconciliation.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/quill-app/quill/internal/domain"
)

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer for the given email.
	CreateCustomer(email, name string) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session for
	// subscribing. The userID travels as client_reference_id and the
	// target plan as metadata so the webhook can resolve both without
	// guessing. Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(customerID, priceID, userID, successURL, cancelURL string) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// GetSubscription retrieves a Stripe subscription by ID.
	GetSubscription(subscriptionID string) (*stripe.Subscription, error)

	// CancelSubscription sets a subscription to cancel at period end.
	CancelSubscription(subscriptionID string) error

	// ReactivateSubscription removes the cancel_at_period_end flag.
	ReactivateSubscription(subscriptionID string) error

	// VerifyWebhookSignature verifies the Stripe webhook signature and
	// returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the plan a Stripe price ID belongs to, or
	// ("", false) for prices we do not sell.
	PlanForPriceID(priceID string) (domain.Plan, bool)

	// PriceIDFor returns the configured price ID for a plan and billing
	// interval ("monthly" or "yearly"), or "" if not configured.
	PriceIDFor(plan domain.Plan, interval string) string
}

// PriceConfig holds the Stripe price IDs for each paid plan.
type PriceConfig struct {
	BasicMonthlyPriceID string
	BasicYearlyPriceID  string
	ProMonthlyPriceID   string
	ProYearlyPriceID    string
	EliteMonthlyPriceID string
	EliteYearlyPriceID  string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	prices        PriceConfig
	priceToPlan   map[string]domain.Plan
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey authenticates Stripe API calls, the webhookSecret
// verifies incoming webhook signatures, and prices maps Stripe price
// IDs onto plans.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	priceToPlan := make(map[string]domain.Plan)
	add := func(priceID string, plan domain.Plan) {
		if priceID != "" {
			priceToPlan[priceID] = plan
		}
	}
	add(prices.BasicMonthlyPriceID, domain.PlanBasic)
	add(prices.BasicYearlyPriceID, domain.PlanBasic)
	add(prices.ProMonthlyPriceID, domain.PlanPro)
	add(prices.ProYearlyPriceID, domain.PlanPro)
	add(prices.EliteMonthlyPriceID, domain.PlanElite)
	add(prices.EliteYearlyPriceID, domain.PlanElite)

	return &stripeService{
		webhookSecret: webhookSecret,
		prices:        prices,
		priceToPlan:   priceToPlan,
	}
}

func (s *stripeService) CreateCustomer(email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(customerID, priceID, userID, successURL, cancelURL string) (string, error) {
	plan, ok := s.priceToPlan[priceID]
	if !ok {
		return "", fmt.Errorf("stripe create checkout session: unknown price %q", priceID)
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(userID),
		Metadata: map[string]string{
			"plan": string(plan),
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) GetSubscription(subscriptionID string) (*stripe.Subscription, error) {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription: %w", err)
	}
	return sub, nil
}

func (s *stripeService) CancelSubscription(subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}

func (s *stripeService) ReactivateSubscription(subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	_, err := subscription.Update(subscriptionID, params)
	if err != nil {
		return fmt.Errorf("stripe reactivate subscription: %w", err)
	}
	return nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

func (s *stripeService) PlanForPriceID(priceID string) (domain.Plan, bool) {
	plan, ok := s.priceToPlan[priceID]
	return plan, ok
}

func (s *stripeService) PriceIDFor(plan domain.Plan, interval string) string {
	switch plan {
	case domain.PlanBasic:
		if interval == "yearly" {
			return s.prices.BasicYearlyPriceID
		}
		return s.prices.BasicMonthlyPriceID
	case domain.PlanPro:
		if interval == "yearly" {
			return s.prices.ProYearlyPriceID
		}
		return s.prices.ProMonthlyPriceID
	case domain.PlanElite:
		if interval == "yearly" {
			return s.prices.EliteYearlyPriceID
		}
		return s.prices.EliteMonthlyPriceID
	default:
		return ""
	}
}
