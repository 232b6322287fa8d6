package middleware

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/metrics"
	"github.com/VmalRaj-Dev/limetto/internal/model"
	"github.com/VmalRaj-Dev/limetto/internal/subscription"

	"github.com/rs/zerolog"
)

const (
	LoginPath     = "/login"
	SignupPath    = "/signup"
	DashboardPath = "/dashboard"
	SubscribePath = "/subscribe"
)

// ProfileReader is the read side of the profile store the gate needs.
type ProfileReader interface {
	GetProfileByID(ctx context.Context, id string) (*model.Profile, error)
}

// GateConfig lists the paths the access gate treats specially.
type GateConfig struct {
	ProtectedPaths []string
	ExemptPaths    []string
	// SkipPrefixes are never gated: webhook, auth callback, API and
	// monitoring routes.
	SkipPrefixes []string
}

// DefaultSkipPrefixes are the routes the gate never inspects.
var DefaultSkipPrefixes = []string{
	"/_next/static",
	"/_next/image",
	"/favicon.svg",
	"/api/webhook",
	"/auth/confirm",
	"/v1/",
	"/cron/",
	"/email/",
	"/api/cron/",
	"/api/email/",
	"/metrics",
	"/healthz",
}

func matchesAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func (c GateConfig) skip(p string) bool {
	if strings.Contains(path.Base(p), ".") {
		return true
	}
	for _, prefix := range c.SkipPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// AccessGate redirects navigational requests based on the caller's session
// and entitlement. It expects SessionMiddleware to run first. Any failure to
// load the profile denies access.
func AccessGate(cfg GateConfig, profiles ProfileReader, now func() time.Time, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("middleware", "AccessGate").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := r.URL.Path
			if cfg.skip(p) {
				next.ServeHTTP(w, r)
				return
			}

			session := SessionFromContext(r.Context())
			protected := matchesAny(p, cfg.ProtectedPaths)
			exempt := matchesAny(p, cfg.ExemptPaths)

			if session == nil {
				if protected {
					target := LoginPath
					if p != LoginPath {
						target += "?redirectedFrom=" + url.QueryEscape(p)
					}
					redirect(w, r, target, "login")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if strings.HasPrefix(p, LoginPath) || strings.HasPrefix(p, SignupPath) {
				redirect(w, r, DashboardPath, "dashboard")
				return
			}

			if protected && !exempt {
				profile, err := profiles.GetProfileByID(r.Context(), session.UserID)
				if err != nil {
					logger.Error().Err(err).Str("user_id", session.UserID).Msg("Failed to fetch profile for access check")
					redirect(w, r, SubscribePath, "subscribe")
					return
				}
				if profile == nil || !subscription.IsEntitled(profile.SubscriptionStatus, profile.TrialEndsAt, now()) {
					redirect(w, r, SubscribePath, "subscribe")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func redirect(w http.ResponseWriter, r *http.Request, target, label string) {
	metrics.GateRedirectsTotal.WithLabelValues(label).Inc()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
