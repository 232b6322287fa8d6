package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/dodo"
	"github.com/VmalRaj-Dev/limetto/internal/metrics"
	"github.com/VmalRaj-Dev/limetto/internal/model"
	"github.com/VmalRaj-Dev/limetto/internal/repository"
	"github.com/VmalRaj-Dev/limetto/internal/util"

	"github.com/rs/zerolog"
)

// CheckoutInput is a validated request to start a hosted subscription checkout.
type CheckoutInput struct {
	UserID     string
	CategoryID string
	Email      string
	Name       string
	Billing    dodo.BillingAddress
	// SessionUserID is the signed-in caller, empty for anonymous checkouts.
	SessionUserID string
}

// BillingService starts checkouts and customer-portal sessions.
type BillingService interface {
	CreateSubscription(ctx context.Context, in CheckoutInput) (string, error)
	CreatePortalSession(ctx context.Context, userID string) (string, error)
}

type billingService struct {
	provider  dodo.Client
	profiles  repository.ProfileRepository
	productID string
	returnURL string
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewBillingService(provider dodo.Client, profiles repository.ProfileRepository, productID, returnURL string, timeout time.Duration, logger zerolog.Logger) BillingService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &billingService{
		provider:  provider,
		profiles:  profiles,
		productID: productID,
		returnURL: returnURL,
		timeout:   timeout,
		logger:    logger.With().Str("service", "BillingService").Logger(),
	}
}

// CreateSubscription resolves or creates the user's provider customer and
// returns a hosted payment link for a new subscription. All provider calls
// share one deadline.
func (s *billingService) CreateSubscription(ctx context.Context, in CheckoutInput) (string, error) {
	link, err := s.createSubscription(ctx, in)
	switch {
	case err == nil:
		metrics.CheckoutsTotal.WithLabelValues("success").Inc()
	case errors.Is(err, ErrInvalidCountry), errors.Is(err, ErrForbidden):
		metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
	default:
		metrics.CheckoutsTotal.WithLabelValues("error").Inc()
	}
	return link, err
}

func (s *billingService) createSubscription(ctx context.Context, in CheckoutInput) (string, error) {
	if s.productID == "" {
		return "", fmt.Errorf("subscription product id: %w", ErrNotConfigured)
	}
	if in.SessionUserID != "" && in.SessionUserID != in.UserID {
		s.logger.Warn().Str("session_user_id", in.SessionUserID).Str("user_id", in.UserID).Msg("Checkout requested for another user")
		return "", fmt.Errorf("%w: checkout for another user", ErrForbidden)
	}
	country, ok := util.CountryCode(in.Billing.Country)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidCountry, in.Billing.Country)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	customerID, err := s.resolveCustomer(ctx, in)
	if err != nil {
		return "", s.timeoutAware(ctx, err)
	}

	billing := in.Billing
	billing.Country = country
	resp, err := s.provider.CreateSubscription(ctx, dodo.CreateSubscriptionRequest{
		Billing:     billing,
		Customer:    dodo.CustomerRef{CustomerID: customerID},
		ProductID:   s.productID,
		Quantity:    1,
		PaymentLink: true,
		ReturnURL:   s.returnURL,
		Metadata: map[string]string{
			dodo.MetaUserID:     in.UserID,
			dodo.MetaCategoryID: in.CategoryID,
			dodo.MetaCustomerID: customerID,
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to create subscription")
		return "", s.timeoutAware(ctx, fmt.Errorf("%w: %w", ErrProviderUnavailable, err))
	}
	if resp.PaymentLink == "" {
		return "", fmt.Errorf("%w: subscription %s has no payment link", ErrProviderUnavailable, resp.SubscriptionID)
	}

	s.logger.Info().
		Str("user_id", in.UserID).
		Str("customer_id", customerID).
		Str("subscription_id", resp.SubscriptionID).
		Msg("Subscription checkout created")
	return resp.PaymentLink, nil
}

func (s *billingService) timeoutAware(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out after %s: %w", ErrProviderUnavailable, s.timeout, err)
	}
	return err
}

// resolveCustomer reuses the stored customer id or creates one. The new id is
// persisted before the subscription is requested so a retried checkout reuses
// it; if another request stored an id first, that one wins.
func (s *billingService) resolveCustomer(ctx context.Context, in CheckoutInput) (string, error) {
	profile, err := s.profiles.GetProfileByID(ctx, in.UserID)
	if err != nil {
		return "", fmt.Errorf("fetching profile %s: %w", in.UserID, err)
	}
	if profile == nil {
		return "", fmt.Errorf("%w: %s", ErrProfileNotFound, in.UserID)
	}
	if profile.DodoCustomerID != nil && *profile.DodoCustomerID != "" {
		return *profile.DodoCustomerID, nil
	}

	customer, err := s.provider.CreateCustomer(ctx, dodo.CreateCustomerRequest{Email: in.Email, Name: in.Name})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", in.UserID).Msg("Failed to create customer")
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	stored, err := s.profiles.SetCustomerID(ctx, in.UserID, customer.CustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrProfileNotFound, in.UserID)
		}
		return "", fmt.Errorf("storing customer id: %w", err)
	}
	if stored != customer.CustomerID {
		s.logger.Warn().
			Str("user_id", in.UserID).
			Str("created_customer_id", customer.CustomerID).
			Str("stored_customer_id", stored).
			Msg("Customer id already stored by a concurrent checkout; reusing it")
	}
	return stored, nil
}

func (s *billingService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	profile, err := s.profiles.GetProfileByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetching profile %s: %w", userID, err)
	}
	if !hasCustomer(profile) {
		return "", fmt.Errorf("%w: user %s", ErrCustomerNotFound, userID)
	}
	session, err := s.provider.CreateCustomerPortalSession(ctx, *profile.DodoCustomerID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create customer portal session")
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if session.Link == "" {
		return "", fmt.Errorf("%w: portal session has no link", ErrProviderUnavailable)
	}
	return session.Link, nil
}

func hasCustomer(p *model.Profile) bool {
	return p != nil && p.DodoCustomerID != nil && *p.DodoCustomerID != ""
}
