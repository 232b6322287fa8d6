package service

import "errors"

var (
	// ErrInvalidSignature is returned when a webhook fails signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrInvalidPayload is returned when a verified webhook body cannot be parsed.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrInvalidMetadata is returned when provider metadata lacks the ids that
	// tie an object back to a profile.
	ErrInvalidMetadata = errors.New("invalid metadata")
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	// ErrUnsupportedEvent marks a verified event whose type is not handled.
	ErrUnsupportedEvent = errors.New("unsupported event type")
	// ErrProviderUnavailable wraps failures talking to the payment provider.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrCustomerNotFound    = errors.New("customer not found")
	// ErrNotConfigured is returned when a setting the operation needs is empty.
	ErrNotConfigured  = errors.New("not configured")
	ErrInvalidCountry = errors.New("invalid country")
	ErrForbidden      = errors.New("forbidden")
)
