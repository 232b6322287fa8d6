package dodo

import (
	"fmt"
	"time"
)

// Metadata keys written on subscriptions so webhooks can find the profile.
const (
	MetaUserID     = "supabase_user_id"
	MetaCategoryID = "supabase_category_id"
	MetaCustomerID = "dodopayments_customer_id"
)

// BillingAddress is the address attached to a subscription. Country is an
// ISO 3166-1 alpha-2 code.
type BillingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Zipcode string `json:"zipcode"`
}

type Customer struct {
	CustomerID string `json:"customer_id"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
}

type CreateCustomerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CustomerRef attaches an existing customer to a new subscription.
type CustomerRef struct {
	CustomerID string `json:"customer_id"`
}

type CreateSubscriptionRequest struct {
	Billing     BillingAddress    `json:"billing"`
	Customer    CustomerRef       `json:"customer"`
	ProductID   string            `json:"product_id"`
	Quantity    int               `json:"quantity"`
	PaymentLink bool              `json:"payment_link"`
	ReturnURL   string            `json:"return_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type CreateSubscriptionResponse struct {
	SubscriptionID string            `json:"subscription_id"`
	PaymentID      string            `json:"payment_id,omitempty"`
	PaymentLink    string            `json:"payment_link"`
	Customer       Customer          `json:"customer"`
	Metadata       map[string]string `json:"metadata"`
}

// Subscription is the provider's authoritative view of a subscription.
type Subscription struct {
	SubscriptionID          string            `json:"subscription_id"`
	Status                  string            `json:"status"`
	ProductID               string            `json:"product_id"`
	Customer                Customer          `json:"customer"`
	Metadata                map[string]string `json:"metadata"`
	CreatedAt               time.Time         `json:"created_at"`
	NextBillingDate         time.Time         `json:"next_billing_date"`
	PreviousBillingDate     time.Time         `json:"previous_billing_date"`
	TrialPeriodDays         int               `json:"trial_period_days"`
	RecurringPreTaxAmount   int64             `json:"recurring_pre_tax_amount"`
	Currency                string            `json:"currency"`
	CancelAtNextBillingDate bool              `json:"cancel_at_next_billing_date"`
}

// InTrial reports whether the current period is a free trial.
func (s *Subscription) InTrial() bool {
	return s.TrialPeriodDays > 0 && s.NextBillingDate.After(s.CreatedAt)
}

// Payment is the provider's authoritative view of a payment.
type Payment struct {
	PaymentID      string            `json:"payment_id"`
	Status         string            `json:"status"`
	SubscriptionID string            `json:"subscription_id,omitempty"`
	Customer       Customer          `json:"customer"`
	Metadata       map[string]string `json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
	TotalAmount    int64             `json:"total_amount"`
	Currency       string            `json:"currency"`
}

type PortalSession struct {
	Link string `json:"link"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dodo payments returned status %d: %s", e.StatusCode, e.Body)
}
