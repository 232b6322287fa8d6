package model

import "time"

// SubscriptionStatus is the billing relationship recorded on a profile.
type SubscriptionStatus string

const (
	StatusNone       SubscriptionStatus = "none"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusActive     SubscriptionStatus = "active"
	StatusOnHold     SubscriptionStatus = "on_hold"
	StatusCancelled  SubscriptionStatus = "cancelled"
	StatusFailed     SubscriptionStatus = "failed"
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusExpired    SubscriptionStatus = "expired"
	StatusTrialEnded SubscriptionStatus = "trial_ended"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusNone, StatusTrialing, StatusActive, StatusOnHold, StatusCancelled,
		StatusFailed, StatusIncomplete, StatusPastDue, StatusExpired, StatusTrialEnded:
		return true
	}
	return false
}

// Billable reports whether the provider will charge at the next billing date.
func (s SubscriptionStatus) Billable() bool {
	return s == StatusActive || s == StatusTrialing
}

// PaymentStatus is the outcome of the most recent payment.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Profile is the per-user record holding subscription, trial and payment state.
type Profile struct {
	ID                 string             `db:"id" json:"id"`
	Name               string             `db:"name" json:"name"`
	Email              string             `db:"email" json:"email"`
	SubscriptionStatus SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	IsTrialing         bool               `db:"is_trialing" json:"is_trialing"`
	TrialEndsAt        *time.Time         `db:"trial_ends_at" json:"trial_ends_at,omitempty"`
	HasEverTrialed     bool               `db:"has_ever_trialed" json:"has_ever_trialed"`
	SubscribedAt       *time.Time         `db:"subscribed_at" json:"subscribed_at,omitempty"`
	NextBillingAt      *time.Time         `db:"next_billing_at" json:"next_billing_at,omitempty"`
	LastPaymentAt      *time.Time         `db:"last_payment_at" json:"last_payment_at,omitempty"`
	PaymentStatus      *PaymentStatus     `db:"payment_status" json:"payment_status,omitempty"`
	DodoCustomerID     *string            `db:"dodopayments_customer_id" json:"dodopayments_customer_id,omitempty"`
	DodoSubscriptionID *string            `db:"dodopayments_subscription_id" json:"dodopayments_subscription_id,omitempty"`
	DodoLastPaymentID  *string            `db:"dodopayments_last_payment_id" json:"dodopayments_last_payment_id,omitempty"`
	ChosenCategoryID   *string            `db:"chosen_category_id" json:"chosen_category_id,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// SubscriptionUpdate is the set of fields a subscription webhook writes.
// Nil pointers leave the stored column untouched unless noted.
type SubscriptionUpdate struct {
	UserID         string
	Status         SubscriptionStatus
	IsTrialing     bool
	TrialEndsAt    *time.Time // always written; nil clears the column
	MarkTrialed    bool       // sets has_ever_trialed; never clears it
	CategoryID     *string
	SubscriptionID string
	CustomerID     *string
	SubscribedAt   time.Time
	NextBillingAt  *time.Time // nil keeps the stored value
	AppliedSince   *time.Time // when set, a duplicate also needs subscribed_at >= AppliedSince
}

// PaymentRecord is what a payment.succeeded webhook persists.
type PaymentRecord struct {
	UserID     string
	PaymentID  string
	PaidAt     time.Time
	CustomerID *string
}
