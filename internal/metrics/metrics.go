package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Dodo Payments webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "limetto",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Dodo Payments webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "limetto",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Dodo Payments webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// WebhookIgnoredTotal counts verified events with a type we do not handle.
	WebhookIgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "limetto",
		Subsystem: "billing",
		Name:      "webhook_ignored_total",
		Help:      "Verified webhook events ignored because their type is not handled.",
	}, []string{"event_type"})

	// TrialsExpiredTotal counts profiles moved from trialing to trial_ended.
	TrialsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "limetto",
		Subsystem: "billing",
		Name:      "trials_expired_total",
		Help:      "Profiles transitioned from trialing to trial_ended by the sweeper.",
	})

	// RemindersSentTotal counts payment reminders by outcome.
	RemindersSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "limetto",
		Subsystem: "billing",
		Name:      "payment_reminders_total",
		Help:      "Payment reminder notifications by outcome.",
	}, []string{"outcome"})

	// CheckoutsTotal counts checkout attempts by outcome.
	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "limetto",
		Subsystem: "billing",
		Name:      "checkouts_total",
		Help:      "Subscription checkout attempts by outcome.",
	}, []string{"outcome"})

	// GateRedirectsTotal counts access gate redirects by target.
	GateRedirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "limetto",
		Subsystem: "gate",
		Name:      "redirects_total",
		Help:      "Access gate redirects by target page.",
	}, []string{"target"})
)
