package dto

// BillingDTO is the billing address collected on the signup form. Only the
// country is required; the provider accepts partial addresses.
type BillingDTO struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country" validate:"required"`
	Zipcode string `json:"zipcode"`
}

// CheckoutRequestDTO starts a hosted subscription checkout.
type CheckoutRequestDTO struct {
	SupabaseUserID     string     `json:"supabaseUserId" validate:"required,uuid"`
	SupabaseCategoryID string     `json:"supabaseCategoryId" validate:"required"`
	Email              string     `json:"email" validate:"required,email"`
	Name               string     `json:"name" validate:"required"`
	Billing            BillingDTO `json:"billing" validate:"required"`
}

type CheckoutResponseDTO struct {
	PaymentLink string `json:"payment_link"`
}

type PortalSessionResponseDTO struct {
	SessionURL string `json:"session_url"`
}
