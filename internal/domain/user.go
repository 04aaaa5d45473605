// Package domain contains core business types and interfaces.
//
// This file defines the User domain type and its subscription sub-record.
// These types are separate from the repository rows to allow for business
// logic enrichment and to decouple the domain layer from the database layer.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the possible states of a user's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

// Subscription is the billing sub-record owned by exactly one user profile.
//
// The stored Plan is historical/display-only: a lapsed paid plan is
// collapsed to free at evaluation time without rewriting this record,
// so the user's original plan selection survives reactivation.
type Subscription struct {
	Plan              Plan               `json:"plan"`
	Status            SubscriptionStatus `json:"status"`
	StripeCustomerID  string             `json:"stripeCustomerId,omitempty"`
	StripeSubID       string             `json:"stripeSubscriptionId,omitempty"`
	CurrentPeriodEnd  *time.Time         `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool               `json:"cancelAtPeriodEnd"`
	FirstPaymentAt    *time.Time         `json:"firstPaymentAt,omitempty"`
}

// SubscriptionPatch carries the subset of subscription fields a billing
// event actually changed. Nil fields are preserved by the merge-write;
// a naive overwrite would erase the customer ref on every renewal.
type SubscriptionPatch struct {
	Plan              *Plan
	Status            *SubscriptionStatus
	StripeCustomerID  *string
	StripeSubID       *string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd *bool
}

// User represents a registered user of the Quill diary.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string // Never expose this in API responses
	Name         string
	Subscription Subscription
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EffectivePlan returns the plan used for authorization decisions.
//
// The free tier has no billing lifecycle and is always entitled. A paid
// plan counts only while its status is active; any other status falls
// back to free-tier limits without mutating the stored plan.
func (u *User) EffectivePlan() Plan {
	if u.Subscription.Plan == PlanFree || u.Subscription.Plan == "" {
		return PlanFree
	}
	if u.Subscription.Status != SubscriptionStatusActive {
		return PlanFree
	}
	return u.Subscription.Plan
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Session represents an authenticated session.
//
// Sessions are stored with a hashed token; the raw token is only given
// to the client once, at login.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string // SHA-256 hash of the session token
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// RegisterParams contains the validated parameters for user registration.
type RegisterParams struct {
	Email    string
	Password string // Raw password, will be hashed by service
	Name     string
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	User  *User
	Token string // Raw session token (not hashed) - only returned once
}
