// Package subscription maps a profile's billing fields to what the dashboard
// shows and to whether the user may reach paid pages.
package subscription

import (
	"fmt"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/model"
)

// Outcome identifies which classification rule matched.
type Outcome string

const (
	OutcomeActive       Outcome = "active"
	OutcomeTrialActive  Outcome = "trial_active"
	OutcomePaymentIssue Outcome = "payment_issue"
	OutcomeEnded        Outcome = "ended"
	OutcomeTrialExpired Outcome = "trial_expired"
	OutcomeTrialUsed    Outcome = "trial_used"
	OutcomeNoTrial      Outcome = "no_trial"
	OutcomeUnknown      Outcome = "unknown"
)

// TrialDateLayout formats trial end dates in status messages.
const TrialDateLayout = "Jan 2, 2006"

// Details is the dashboard view of a profile's subscription.
type Details struct {
	Outcome             Outcome `json:"outcome"`
	StatusMessage       string  `json:"status_message"`
	ActionNeeded        bool    `json:"payment_action_needed"`
	ActionMessage       string  `json:"payment_action_message,omitempty"`
	ShowSubscribeButton bool    `json:"show_subscribe_button"`
}

type rule struct {
	outcome Outcome
	match   func(p *model.Profile, now time.Time) bool
	details func(p *model.Profile) Details
}

func statusIn(statuses ...model.SubscriptionStatus) func(*model.Profile, time.Time) bool {
	return func(p *model.Profile, _ time.Time) bool {
		for _, s := range statuses {
			if p.SubscriptionStatus == s {
				return true
			}
		}
		return false
	}
}

func needsAction(status, action string) func(*model.Profile) Details {
	return func(*model.Profile) Details {
		return Details{StatusMessage: status, ActionNeeded: true, ActionMessage: action, ShowSubscribeButton: true}
	}
}

// rules is evaluated top to bottom and the first match wins. Several rules
// can hold for the same profile, so the order is part of the contract.
var rules = []rule{
	{
		outcome: OutcomeActive,
		match:   statusIn(model.StatusActive),
		details: func(*model.Profile) Details { return Details{StatusMessage: "Subscribed (Active)"} },
	},
	{
		outcome: OutcomeTrialActive,
		match:   statusIn(model.StatusTrialing),
		details: func(p *model.Profile) Details {
			ends := "N/A"
			if p.TrialEndsAt != nil {
				ends = p.TrialEndsAt.UTC().Format(TrialDateLayout)
			}
			return Details{StatusMessage: fmt.Sprintf("Trial Active (ends %s)", ends)}
		},
	},
	{
		outcome: OutcomePaymentIssue,
		match:   statusIn(model.StatusFailed, model.StatusIncomplete),
		details: needsAction("Payment Issue Detected", "There was an issue with your payment. Please update your details."),
	},
	{
		outcome: OutcomeEnded,
		match:   statusIn(model.StatusCancelled, model.StatusPastDue),
		details: needsAction("Subscription Expired / Cancelled", "Your subscription has ended. Renew now to regain access!"),
	},
	{
		outcome: OutcomeTrialExpired,
		match: func(p *model.Profile, now time.Time) bool {
			return p.TrialEndsAt != nil && p.TrialEndsAt.Before(now) && p.SubscriptionStatus != model.StatusActive
		},
		details: needsAction("Trial Expired", "Your trial has ended. Subscribe to continue!"),
	},
	{
		outcome: OutcomeTrialUsed,
		match: func(p *model.Profile, _ time.Time) bool {
			return p.HasEverTrialed && p.SubscriptionStatus != model.StatusActive && p.SubscriptionStatus != model.StatusTrialing
		},
		details: needsAction("Trial Used / Not Subscribed", "You've used your trial. Subscribe to unlock full features!"),
	},
	{
		outcome: OutcomeNoTrial,
		match: func(p *model.Profile, _ time.Time) bool {
			return !p.HasEverTrialed && p.TrialEndsAt == nil && p.SubscriptionStatus == model.StatusNone
		},
		details: needsAction("No Trial Started / Not Subscribed", "Start your trial or subscribe to explore features!"),
	},
	{
		outcome: OutcomeUnknown,
		match:   func(*model.Profile, time.Time) bool { return true },
		details: func(p *model.Profile) Details {
			status := string(p.SubscriptionStatus)
			if status == "" {
				status = "N/A"
			}
			return needsAction("Status: "+status, "It looks like your subscription status is unclear.")(p)
		},
	},
}

// Classify returns the dashboard details for p at time now.
func Classify(p *model.Profile, now time.Time) Details {
	for _, r := range rules {
		if r.match(p, now) {
			d := r.details(p)
			d.Outcome = r.outcome
			return d
		}
	}
	// unreachable: the last rule always matches
	return Details{Outcome: OutcomeUnknown}
}

// IsEntitled reports whether a user with the given status may use paid pages.
func IsEntitled(status model.SubscriptionStatus, trialEndsAt *time.Time, now time.Time) bool {
	if status == model.StatusActive {
		return true
	}
	return status == model.StatusTrialing && trialEndsAt != nil && trialEndsAt.After(now)
}
