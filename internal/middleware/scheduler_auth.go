package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/idtoken"
)

var validateIDToken = idtoken.Validate

// SchedulerAuthMiddleware protects the cron endpoints. A request passes with
// either "Bearer <cronSecret>" or, when audience is set, a Google-signed OIDC
// token issued to expectedEmail (Cloud Scheduler). With neither configured
// every request is refused with 500.
func SchedulerAuthMiddleware(cronSecret, audience, expectedEmail string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cronSecret == "" && audience == "" {
				logger.Error().Msg("Scheduler auth configured without a cron secret or OIDC audience; requests will be denied")
				http.Error(w, "Configuration error: scheduler auth not configured", http.StatusInternalServerError)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn().Str("path", r.URL.Path).Msg("Missing Authorization header in scheduler request")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				logger.Warn().Msg("Malformed Authorization header in scheduler request")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(parts[1])

			if cronSecret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cronSecret)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			if audience == "" {
				logger.Warn().Str("path", r.URL.Path).Msg("Invalid cron secret")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !validOIDCCaller(r.Context(), token, audience, expectedEmail, logger) {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validOIDCCaller(ctx context.Context, token, audience, expectedEmail string, logger zerolog.Logger) bool {
	payload, err := validateIDToken(ctx, token, audience)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to validate scheduler OIDC token")
		return false
	}
	if expectedEmail == "" {
		return true
	}
	email, _ := payload.Claims["email"].(string)
	if email != expectedEmail {
		logger.Warn().
			Str("token_email", email).
			Str("expected_email", expectedEmail).
			Msg("Scheduler OIDC token email does not match expected service account")
		return false
	}
	logger.Info().
		Str("email", email).
		Str("issuer", payload.Issuer).
		Msg("Authenticated scheduler request")
	return true
}
