package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/pubsub"

	"github.com/rs/zerolog"
)

// NotificationKind names the lifecycle email a downstream mailer should send.
type NotificationKind string

const (
	NotifyWelcome               NotificationKind = "welcome"
	NotifyTrialActivated        NotificationKind = "trial_activated"
	NotifySubscriptionStarted   NotificationKind = "subscription_started"
	NotifySubscriptionRenewed   NotificationKind = "subscription_renewed"
	NotifySubscriptionCancelled NotificationKind = "subscription_cancelled"
	NotifyPaymentSuccess        NotificationKind = "payment_success"
	NotifyPaymentReminder       NotificationKind = "payment_reminder"
)

// Notification is the message published for the mailer.
type Notification struct {
	Kind            NotificationKind `json:"kind"`
	UserID          string           `json:"user_id"`
	Email           string           `json:"email"`
	UserName        string           `json:"user_name"`
	Amount          float64          `json:"amount,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	TrialEndDate    *time.Time       `json:"trial_end_date,omitempty"`
	NextBillingDate *time.Time       `json:"next_billing_date,omitempty"`
	AccessEndDate   *time.Time       `json:"access_end_date,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

func (n *Notification) validate() error {
	if n.Email == "" {
		return fmt.Errorf("%s notification for user %s has no email", n.Kind, n.UserID)
	}
	switch n.Kind {
	case NotifyTrialActivated:
		if n.TrialEndDate == nil {
			return fmt.Errorf("trial end date is required for %s", n.Kind)
		}
	case NotifySubscriptionStarted, NotifySubscriptionRenewed:
		if n.NextBillingDate == nil {
			return fmt.Errorf("next billing date is required for %s", n.Kind)
		}
	case NotifyPaymentReminder:
		if n.Amount <= 0 || n.NextBillingDate == nil {
			return fmt.Errorf("amount and next billing date are required for %s", n.Kind)
		}
	case NotifySubscriptionCancelled:
		if n.AccessEndDate == nil {
			return fmt.Errorf("access end date is required for %s", n.Kind)
		}
	}
	return nil
}

// NotificationService publishes lifecycle notifications.
type NotificationService interface {
	Notify(ctx context.Context, n Notification) error
}

type notificationService struct {
	publisher pubsub.Publisher
	topic     string
	now       func() time.Time
	logger    zerolog.Logger
}

func NewNotificationService(publisher pubsub.Publisher, topic string, logger zerolog.Logger) NotificationService {
	return &notificationService{
		publisher: publisher,
		topic:     topic,
		now:       time.Now,
		logger:    logger.With().Str("service", "NotificationService").Logger(),
	}
}

func (s *notificationService) Notify(ctx context.Context, n Notification) error {
	if err := n.validate(); err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling %s notification: %w", n.Kind, err)
	}
	msgID, err := s.publisher.Publish(ctx, s.topic, payload, map[string]string{
		"kind":    string(n.Kind),
		"user_id": n.UserID,
	})
	if err != nil {
		return fmt.Errorf("publishing %s notification: %w", n.Kind, err)
	}
	s.logger.Info().
		Str("kind", string(n.Kind)).
		Str("user_id", n.UserID).
		Str("message_id", msgID).
		Msg("Notification published")
	return nil
}

// notifyBestEffort sends n and only logs failures.
func notifyBestEffort(ctx context.Context, notifier NotificationService, logger zerolog.Logger, n Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, n); err != nil {
		logger.Warn().Err(err).Str("kind", string(n.Kind)).Str("user_id", n.UserID).Msg("Failed to send notification")
	}
}
