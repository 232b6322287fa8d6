package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/dodo"
	"github.com/VmalRaj-Dev/limetto/internal/metrics"
	"github.com/VmalRaj-Dev/limetto/internal/model"
	"github.com/VmalRaj-Dev/limetto/internal/repository"
	"github.com/VmalRaj-Dev/limetto/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

// EventType is a Dodo Payments webhook event this service acts on.
type EventType string

const (
	EventSubscriptionActive    EventType = "subscription.active"
	EventSubscriptionRenewed   EventType = "subscription.renewed"
	EventSubscriptionOnHold    EventType = "subscription.on_hold"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventSubscriptionFailed    EventType = "subscription.failed"
	EventSubscriptionTrialEnd  EventType = "subscription.trial_end"
	EventPaymentSucceeded      EventType = "payment.succeeded"
	EventPaymentFailed         EventType = "payment.failed"
)

const (
	payloadSubscription = "Subscription"
	payloadPayment      = "Payment"
)

// eventPayloads maps every handled event to the payload_type it must carry.
var eventPayloads = map[EventType]string{
	EventSubscriptionActive:    payloadSubscription,
	EventSubscriptionRenewed:   payloadSubscription,
	EventSubscriptionOnHold:    payloadSubscription,
	EventSubscriptionCancelled: payloadSubscription,
	EventSubscriptionFailed:    payloadSubscription,
	EventSubscriptionTrialEnd:  payloadSubscription,
	EventPaymentSucceeded:      payloadPayment,
	EventPaymentFailed:         payloadPayment,
}

// ParseEventType returns the handled event for name, or ErrUnsupportedEvent.
func ParseEventType(name string) (EventType, error) {
	evt := EventType(name)
	if _, ok := eventPayloads[evt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedEvent, name)
	}
	return evt, nil
}

// WebhookEvent is the thin envelope Dodo Payments delivers. The referenced
// object is always re-fetched from the API.
type WebhookEvent struct {
	Type       string    `json:"type"`
	BusinessID string    `json:"business_id"`
	Timestamp  time.Time `json:"timestamp"`
	Data       struct {
		PayloadType    string `json:"payload_type"`
		SubscriptionID string `json:"subscription_id"`
		PaymentID      string `json:"payment_id"`
	} `json:"data"`
}

// WebhookResult describes what a verified delivery did.
type WebhookResult struct {
	EventType string
	// Applied is false when the delivery was a duplicate.
	Applied bool
}

// WebhookVerifier checks a Standard Webhooks signature.
type WebhookVerifier interface {
	Verify(payload []byte, headers http.Header) error
}

// NewWebhookVerifier builds a verifier for a "whsec_" prefixed signing key.
func NewWebhookVerifier(secret string) (WebhookVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook signing key: %w", ErrNotConfigured)
	}
	wh, err := standardwebhooks.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("parsing webhook signing key: %w", err)
	}
	return wh, nil
}

// subscriptionMetadata is what checkout writes onto every subscription.
type subscriptionMetadata struct {
	UserID     string `validate:"required,uuid"`
	CategoryID string `validate:"required"`
	CustomerID string
}

// WebhookService reconciles provider events with profiles.
type WebhookService interface {
	HandleWebhook(ctx context.Context, headers http.Header, payload []byte) (*WebhookResult, error)
}

type webhookService struct {
	verifier WebhookVerifier
	provider dodo.Client
	profiles repository.ProfileRepository
	notifier NotificationService
	archiver storage.Archiver
	validate *validator.Validate
	now      func() time.Time
	logger   zerolog.Logger
}

// NewWebhookService creates a WebhookService. A nil verifier makes every
// delivery fail with ErrNotConfigured.
func NewWebhookService(
	verifier WebhookVerifier,
	provider dodo.Client,
	profiles repository.ProfileRepository,
	notifier NotificationService,
	archiver storage.Archiver,
	validate *validator.Validate,
	logger zerolog.Logger,
) WebhookService {
	if archiver == nil {
		archiver = storage.NopArchiver{}
	}
	return &webhookService{
		verifier: verifier,
		provider: provider,
		profiles: profiles,
		notifier: notifier,
		archiver: archiver,
		validate: validate,
		now:      time.Now,
		logger:   logger.With().Str("service", "WebhookService").Logger(),
	}
}

func (s *webhookService) HandleWebhook(ctx context.Context, headers http.Header, payload []byte) (*WebhookResult, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("webhook verification: %w", ErrNotConfigured)
	}
	if err := s.verifier.Verify(payload, headers); err != nil {
		s.logger.Warn().Err(err).Str("webhook_id", headers.Get("webhook-id")).Msg("Webhook signature verification failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	result := &WebhookResult{EventType: event.Type}

	evt, err := ParseEventType(event.Type)
	if err != nil {
		metrics.WebhookIgnoredTotal.WithLabelValues(event.Type).Inc()
		s.logger.Warn().Str("event_type", event.Type).Str("payload_type", event.Data.PayloadType).Msg("Ignoring unsupported webhook event")
		return result, err
	}
	if want := eventPayloads[evt]; event.Data.PayloadType != want {
		return result, fmt.Errorf("%w: %s carries payload_type %q, want %q", ErrInvalidPayload, evt, event.Data.PayloadType, want)
	}

	s.logger.Info().Str("event_type", event.Type).Str("webhook_id", headers.Get("webhook-id")).Msg("Dodo Payments webhook received")
	s.archive(ctx, headers.Get("webhook-id"), event.Type, payload)

	switch evt {
	case EventSubscriptionActive, EventSubscriptionRenewed, EventSubscriptionOnHold,
		EventSubscriptionCancelled, EventSubscriptionFailed, EventSubscriptionTrialEnd:
		result.Applied, err = s.handleSubscriptionEvent(ctx, evt, event.Data.SubscriptionID)
	case EventPaymentSucceeded:
		result.Applied, err = s.handlePaymentSucceeded(ctx, event.Data.PaymentID)
	case EventPaymentFailed:
		result.Applied, err = s.handlePaymentFailed(ctx, event.Data.PaymentID)
	default:
		err = fmt.Errorf("%w: %s has no handler", ErrUnsupportedEvent, evt)
	}
	return result, err
}

func (s *webhookService) archive(ctx context.Context, webhookID, eventType string, payload []byte) {
	key, err := s.archiver.ArchiveWebhook(ctx, webhookID, eventType, s.now(), payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("webhook_id", webhookID).Msg("Failed to archive webhook payload")
		return
	}
	if key != "" {
		s.logger.Debug().Str("key", key).Msg("Webhook payload archived")
	}
}

func (s *webhookService) loadProfile(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profiles.GetProfileByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching profile %s: %w", userID, err)
	}
	if profile == nil {
		s.logger.Error().Str("user_id", userID).Msg("Webhook references unknown profile")
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	return profile, nil
}

func (s *webhookService) handleSubscriptionEvent(ctx context.Context, evt EventType, subscriptionID string) (bool, error) {
	if subscriptionID == "" {
		return false, fmt.Errorf("%w: missing subscription_id", ErrInvalidPayload)
	}
	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	meta := subscriptionMetadata{
		UserID:     sub.Metadata[dodo.MetaUserID],
		CategoryID: sub.Metadata[dodo.MetaCategoryID],
		CustomerID: sub.Metadata[dodo.MetaCustomerID],
	}
	if err := s.validate.Struct(meta); err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subscriptionID).Msg("Subscription metadata is missing profile ids")
		return false, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	profile, err := s.loadProfile(ctx, meta.UserID)
	if err != nil {
		return false, err
	}

	log := s.logger.With().
		Str("event_type", string(evt)).
		Str("user_id", meta.UserID).
		Str("subscription_id", subscriptionID).
		Logger()

	switch evt {
	case EventSubscriptionActive:
		return s.activate(ctx, log, profile, sub, meta)
	case EventSubscriptionRenewed:
		return s.renew(ctx, log, profile, sub, meta)
	case EventSubscriptionOnHold:
		return s.setStatus(ctx, log, meta.UserID, subscriptionID, model.StatusOnHold)
	case EventSubscriptionCancelled, EventSubscriptionFailed:
		applied, err := s.setStatus(ctx, log, meta.UserID, subscriptionID, model.StatusCancelled)
		if err == nil && applied {
			accessEnd := sub.NextBillingDate
			notifyBestEffort(ctx, s.notifier, log, Notification{
				Kind:          NotifySubscriptionCancelled,
				UserID:        profile.ID,
				Email:         profile.Email,
				UserName:      profile.Name,
				AccessEndDate: &accessEnd,
			})
		}
		return applied, err
	case EventSubscriptionTrialEnd:
		return s.setStatus(ctx, log, meta.UserID, subscriptionID, model.StatusTrialEnded)
	}
	return false, fmt.Errorf("%w: %s is not a subscription event", ErrUnsupportedEvent, evt)
}

func customerFor(meta subscriptionMetadata, sub *dodo.Subscription) *string {
	if meta.CustomerID != "" {
		return &meta.CustomerID
	}
	if sub.Customer.CustomerID != "" {
		id := sub.Customer.CustomerID
		return &id
	}
	return nil
}

func (s *webhookService) activate(ctx context.Context, log zerolog.Logger, profile *model.Profile, sub *dodo.Subscription, meta subscriptionMetadata) (bool, error) {
	trialing := sub.InTrial()
	status := model.StatusActive
	var trialEnds *time.Time
	if trialing {
		status = model.StatusTrialing
		ends := sub.NextBillingDate
		trialEnds = &ends
	}
	category := meta.CategoryID

	applied, err := s.profiles.ApplySubscription(ctx, &model.SubscriptionUpdate{
		UserID:         meta.UserID,
		Status:         status,
		IsTrialing:     trialing,
		TrialEndsAt:    trialEnds,
		MarkTrialed:    true,
		CategoryID:     &category,
		SubscriptionID: sub.SubscriptionID,
		CustomerID:     customerFor(meta, sub),
		SubscribedAt:   s.now().UTC(),
		NextBillingAt:  nextBilling(sub),
	})
	if err != nil {
		return false, err
	}
	if !applied {
		log.Info().Msg("Subscription activation already processed")
		return false, nil
	}
	log.Info().Str("status", string(status)).Msg("Subscription activated")

	n := Notification{UserID: profile.ID, Email: profile.Email, UserName: profile.Name}
	if trialing {
		n.Kind = NotifyTrialActivated
		n.TrialEndDate = trialEnds
	} else {
		n.Kind = NotifySubscriptionStarted
		next := sub.NextBillingDate
		n.NextBillingDate = &next
	}
	notifyBestEffort(ctx, s.notifier, log, n)
	return true, nil
}

func nextBilling(sub *dodo.Subscription) *time.Time {
	if sub.NextBillingDate.IsZero() {
		return nil
	}
	next := sub.NextBillingDate.UTC()
	return &next
}

// providerStatus maps the provider's subscription status onto the profile enum.
func providerStatus(status string) (model.SubscriptionStatus, bool) {
	if status == "pending" {
		return model.StatusIncomplete, true
	}
	st := model.SubscriptionStatus(status)
	return st, st.Valid()
}

func (s *webhookService) renew(ctx context.Context, log zerolog.Logger, profile *model.Profile, sub *dodo.Subscription, meta subscriptionMetadata) (bool, error) {
	status, ok := providerStatus(sub.Status)
	if !ok {
		return false, fmt.Errorf("%w: unknown subscription status %q", ErrInvalidPayload, sub.Status)
	}
	var since *time.Time
	if !sub.PreviousBillingDate.IsZero() {
		prev := sub.PreviousBillingDate
		since = &prev
	}
	category := meta.CategoryID

	applied, err := s.profiles.ApplySubscription(ctx, &model.SubscriptionUpdate{
		UserID:         meta.UserID,
		Status:         status,
		CategoryID:     &category,
		SubscriptionID: sub.SubscriptionID,
		CustomerID:     customerFor(meta, sub),
		SubscribedAt:   s.now().UTC(),
		NextBillingAt:  nextBilling(sub),
		AppliedSince:   since,
	})
	if err != nil {
		return false, err
	}
	if !applied {
		log.Info().Msg("Subscription renewal already processed")
		return false, nil
	}
	log.Info().Str("status", string(status)).Msg("Subscription renewed")

	next := sub.NextBillingDate
	notifyBestEffort(ctx, s.notifier, log, Notification{
		Kind:            NotifySubscriptionRenewed,
		UserID:          profile.ID,
		Email:           profile.Email,
		UserName:        profile.Name,
		NextBillingDate: &next,
	})
	return true, nil
}

func (s *webhookService) setStatus(ctx context.Context, log zerolog.Logger, userID, subscriptionID string, status model.SubscriptionStatus) (bool, error) {
	applied, err := s.profiles.UpdateSubscriptionStatus(ctx, userID, subscriptionID, status)
	if err != nil {
		return false, err
	}
	if applied {
		log.Info().Str("status", string(status)).Msg("Subscription status updated")
	} else {
		log.Info().Str("status", string(status)).Msg("Subscription status already recorded")
	}
	return applied, nil
}

func (s *webhookService) fetchPayment(ctx context.Context, paymentID string) (*dodo.Payment, string, error) {
	if paymentID == "" {
		return nil, "", fmt.Errorf("%w: missing payment_id", ErrInvalidPayload)
	}
	payment, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	userID := payment.Metadata[dodo.MetaUserID]
	if err := s.validate.Var(userID, "required,uuid"); err != nil {
		userID, err = s.userForCustomer(ctx, payment)
		if err != nil {
			return nil, "", err
		}
		if userID == "" {
			s.logger.Error().Str("payment_id", paymentID).Msg("Payment metadata is missing the user id")
			return nil, "", fmt.Errorf("%w: payment %s has no valid %s", ErrInvalidMetadata, paymentID, dodo.MetaUserID)
		}
		s.logger.Info().Str("payment_id", paymentID).Str("user_id", userID).Msg("Payment matched to profile by customer id")
	}
	return payment, userID, nil
}

// userForCustomer finds the profile that owns the payment's customer, or "".
func (s *webhookService) userForCustomer(ctx context.Context, payment *dodo.Payment) (string, error) {
	customerID := payment.Customer.CustomerID
	if customerID == "" {
		customerID = payment.Metadata[dodo.MetaCustomerID]
	}
	if customerID == "" {
		return "", nil
	}
	profile, err := s.profiles.GetProfileByCustomerID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("fetching profile for customer %s: %w", customerID, err)
	}
	if profile == nil {
		return "", nil
	}
	return profile.ID, nil
}

func (s *webhookService) handlePaymentSucceeded(ctx context.Context, paymentID string) (bool, error) {
	payment, userID, err := s.fetchPayment(ctx, paymentID)
	if err != nil {
		return false, err
	}
	profile, err := s.loadProfile(ctx, userID)
	if err != nil {
		return false, err
	}

	var customerID *string
	if payment.Customer.CustomerID != "" {
		customerID = &payment.Customer.CustomerID
	} else if id := payment.Metadata[dodo.MetaCustomerID]; id != "" {
		customerID = &id
	}

	log := s.logger.With().Str("user_id", userID).Str("payment_id", paymentID).Logger()
	applied, err := s.profiles.RecordPaymentSucceeded(ctx, &model.PaymentRecord{
		UserID:     userID,
		PaymentID:  paymentID,
		PaidAt:     payment.CreatedAt.UTC(),
		CustomerID: customerID,
	})
	if err != nil {
		return false, err
	}
	if !applied {
		log.Info().Msg("Payment already recorded")
		return false, nil
	}
	log.Info().Msg("Payment recorded")

	notifyBestEffort(ctx, s.notifier, log, Notification{
		Kind:     NotifyPaymentSuccess,
		UserID:   profile.ID,
		Email:    profile.Email,
		UserName: profile.Name,
		Amount:   float64(payment.TotalAmount) / 100,
		Currency: payment.Currency,
	})
	return true, nil
}

func (s *webhookService) handlePaymentFailed(ctx context.Context, paymentID string) (bool, error) {
	_, userID, err := s.fetchPayment(ctx, paymentID)
	if err != nil {
		return false, err
	}
	if err := s.profiles.RecordPaymentFailed(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
		}
		return false, err
	}
	s.logger.Info().Str("user_id", userID).Str("payment_id", paymentID).Msg("Payment failure recorded")
	return true, nil
}
