package service

import (
	"context"
	"fmt"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/metrics"
	"github.com/VmalRaj-Dev/limetto/internal/repository"

	"github.com/rs/zerolog"
)

// ReminderSettings configures the payment reminder job.
type ReminderSettings struct {
	Amount   float64
	Currency string
}

// TrialService runs the scheduled subscription jobs.
type TrialService interface {
	// ExpireTrials moves every trial that ended before now to trial_ended and
	// returns how many profiles changed.
	ExpireTrials(ctx context.Context, now time.Time) (int64, error)
	// SendPaymentReminders notifies active and trialing subscribers whose next
	// charge falls on the UTC day after now and returns how many reminders
	// were published.
	SendPaymentReminders(ctx context.Context, now time.Time) (int, error)
}

type trialService struct {
	profiles  repository.ProfileRepository
	notifier  NotificationService
	reminders ReminderSettings
	logger    zerolog.Logger
}

func NewTrialService(profiles repository.ProfileRepository, notifier NotificationService, reminders ReminderSettings, logger zerolog.Logger) TrialService {
	return &trialService{
		profiles:  profiles,
		notifier:  notifier,
		reminders: reminders,
		logger:    logger.With().Str("service", "TrialService").Logger(),
	}
}

func (s *trialService) ExpireTrials(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.profiles.ExpireTrials(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to expire trials")
		return 0, err
	}
	metrics.TrialsExpiredTotal.Add(float64(n))
	s.logger.Info().Int64("updated", n).Msg("Trial sweep finished")
	return n, nil
}

func (s *trialService) SendPaymentReminders(ctx context.Context, now time.Time) (int, error) {
	y, m, d := now.UTC().Date()
	from := time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	due, err := s.profiles.ListBillingDueBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("listing profiles due for billing: %w", err)
	}
	if len(due) == 0 {
		s.logger.Info().Str("billing_date", from.Format(time.DateOnly)).Msg("No users found for payment reminders")
		return 0, nil
	}

	sent := 0
	for _, p := range due {
		name := p.Name
		if name == "" {
			name = "there"
		}
		err := s.notifier.Notify(ctx, Notification{
			Kind:            NotifyPaymentReminder,
			UserID:          p.ID,
			Email:           p.Email,
			UserName:        name,
			Amount:          s.reminders.Amount,
			Currency:        s.reminders.Currency,
			NextBillingDate: p.NextBillingAt,
		})
		if err != nil {
			metrics.RemindersSentTotal.WithLabelValues("failed").Inc()
			s.logger.Error().Err(err).Str("user_id", p.ID).Msg("Failed to send payment reminder")
			continue
		}
		metrics.RemindersSentTotal.WithLabelValues("sent").Inc()
		sent++
	}
	s.logger.Info().Int("due", len(due)).Int("sent", sent).Msg("Payment reminders sent")
	return sent, nil
}
