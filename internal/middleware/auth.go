package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/VmalRaj-Dev/limetto/internal/util"

	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

const sessionContextKey = contextKey("session")

// Session is the authenticated identity attached to a request.
type Session struct {
	UserID string
	Email  string
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext returns the request's session, or nil when the request
// is anonymous.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey).(*Session)
	return s
}

// tokenFromRequest reads the access token from the Authorization header,
// falling back to the auth cookie set by the web client.
func tokenFromRequest(r *http.Request, cookieName string) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// SessionMiddleware resolves the caller's session and stores it in the
// request context. Missing or invalid tokens leave the request anonymous;
// callers that require a user wrap their routes in AuthMiddleware.
func SessionMiddleware(jwtSecret, cookieName string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SessionFromContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}
			token := tokenFromRequest(r, cookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := util.ValidateJWT(token, jwtSecret)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Ignoring invalid session token")
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithSession(r.Context(), &Session{UserID: claims.Subject, Email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthMiddleware rejects requests without a valid session with 401.
func AuthMiddleware(jwtSecret, cookieName string, logger zerolog.Logger) func(http.Handler) http.Handler {
	resolve := SessionMiddleware(jwtSecret, cookieName, logger)
	return func(next http.Handler) http.Handler {
		require := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SessionFromContext(r.Context()) == nil {
				logger.Warn().Str("path", r.URL.Path).Msg("Missing or invalid session")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
		return resolve(require)
	}
}
