package dto

import (
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/subscription"
)

// ProfileCreateDTO is sent by the signup flow once the auth user exists.
type ProfileCreateDTO struct {
	Name             string  `json:"name" validate:"required"`
	Email            string  `json:"email" validate:"required,email"`
	ChosenCategoryID *string `json:"chosen_category_id,omitempty"`
}

// ProfileResponseDTO is the dashboard view of a profile.
type ProfileResponseDTO struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	SubscriptionStatus string     `json:"subscription_status"`
	IsTrialing         bool       `json:"is_trialing"`
	TrialEndsAt        *time.Time `json:"trial_ends_at"`
	HasEverTrialed     bool       `json:"has_ever_trialed"`
	SubscribedAt       *time.Time `json:"subscribed_at"`
	NextBillingAt      *time.Time `json:"next_billing_at"`
	LastPaymentAt      *time.Time `json:"last_payment_at"`
	PaymentStatus      *string    `json:"payment_status"`
	ChosenCategoryID   *string    `json:"chosen_category_id"`
	HasCustomer        bool       `json:"has_customer"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Subscription subscription.Details `json:"subscription"`
}
