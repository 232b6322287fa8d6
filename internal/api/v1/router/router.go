package router

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/api/v1/handler"
	"github.com/VmalRaj-Dev/limetto/internal/config"
	"github.com/VmalRaj-Dev/limetto/internal/dodo"
	"github.com/VmalRaj-Dev/limetto/internal/middleware"
	"github.com/VmalRaj-Dev/limetto/internal/pubsub"
	"github.com/VmalRaj-Dev/limetto/internal/repository"
	"github.com/VmalRaj-Dev/limetto/internal/service"
	"github.com/VmalRaj-Dev/limetto/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Deps are the external resources the HTTP stack is built on.
type Deps struct {
	Profiles  repository.ProfileRepository
	Publisher pubsub.Publisher
	Archiver  storage.Archiver
	Provider  dodo.Client
}

// New opens every external resource named by cfg and builds the HTTP
// handler. The returned func releases those resources.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, func(), error) {
	logger.Info().Str("environment", cfg.Environment).Str("payment_mode", cfg.PaymentMode).Msg("App environment loaded")

	// 1. Profile store
	profiles, closeDB, err := repository.Open(ctx, cfg.DBConnectionString, cfg.IsDevelopment(), logger)
	if err != nil {
		return nil, nil, err
	}

	// 2. Notification publisher
	publisher, closePublisher, err := pubsub.Open(ctx, cfg, logger)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	cleanup := func() {
		closePublisher()
		closeDB()
	}

	// 3. Webhook payload archive
	var archiver storage.Archiver
	if cfg.ArchiveBucket != "" {
		s3Client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		archiver = storage.NewS3Archiver(s3Client, cfg.ArchiveBucket)
		logger.Info().Str("bucket", cfg.ArchiveBucket).Msg("Webhook archive enabled")
	}

	h, err := NewHandler(cfg, Deps{
		Profiles:  profiles,
		Publisher: publisher,
		Archiver:  archiver,
		Provider:  dodo.NewClient(cfg.DodoBaseURL(), cfg.DodoAPIKey(), logger),
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	logger.Info().Msg("Router initialized")
	return h, cleanup, nil
}

// NewHandler wires services, handlers and middleware on top of deps.
func NewHandler(cfg *config.Config, deps Deps, logger zerolog.Logger) (http.Handler, error) {
	// 1. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 2. Webhook signature verifier. A missing key fails each delivery with 500.
	var verifier service.WebhookVerifier
	if cfg.DodoWebhookKey != "" {
		v, err := service.NewWebhookVerifier(cfg.DodoWebhookKey)
		if err != nil {
			return nil, err
		}
		verifier = v
	} else {
		logger.Warn().Msg("DODO_PAYMENTS_WEBHOOK_KEY not set; webhooks will be rejected")
	}

	// 3. Initialize services & handlers
	notificationSvc := service.NewNotificationService(deps.Publisher, cfg.PubSubNotificationsTopic, logger)
	webhookSvc := service.NewWebhookService(verifier, deps.Provider, deps.Profiles, notificationSvc, deps.Archiver, validate, logger)
	billingSvc := service.NewBillingService(deps.Provider, deps.Profiles, cfg.DodoProductID, cfg.BaseURL,
		time.Duration(cfg.CheckoutTimeoutSec)*time.Second, logger)
	trialSvc := service.NewTrialService(deps.Profiles, notificationSvc, service.ReminderSettings{
		Amount:   cfg.ReminderAmount,
		Currency: cfg.ReminderCurrency,
	}, logger)
	profileSvc := service.NewProfileService(deps.Profiles, notificationSvc, logger)

	webhookHandler := handler.NewWebhookHandler(webhookSvc, logger)
	billingHandler := handler.NewBillingHandler(billingSvc, validate, logger)
	jobHandler := handler.NewJobHandler(trialSvc, logger)
	profileHandler := handler.NewProfileHandler(profileSvc, validate, logger)

	// 4. Initialize middleware
	sessionMiddleware := middleware.SessionMiddleware(cfg.JWTSecret, cfg.AuthCookieName, logger)
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret, cfg.AuthCookieName, logger)
	schedulerMiddleware := middleware.SchedulerAuthMiddleware(cfg.CronSecret, cfg.SchedulerOIDCAudience, cfg.SchedulerServiceAccountEmail, logger)
	accessGate := middleware.AccessGate(middleware.GateConfig{
		ProtectedPaths: cfg.ProtectedPaths,
		ExemptPaths:    cfg.SubscriptionExemptPaths,
		SkipPrefixes:   middleware.DefaultSkipPrefixes,
	}, deps.Profiles, time.Now, logger)

	// 5. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	webhookHandler.RegisterRoutes(apiV1Mux)
	billingHandler.RegisterRoutes(apiV1Mux, sessionMiddleware, authMiddleware)
	profileHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// Paths the web client and provider dashboard already call
	mux.HandleFunc("/api/webhook", webhookHandler.HandleDodoWebhook)
	mux.Handle("/api/checkout/subscription", sessionMiddleware(http.HandlerFunc(billingHandler.Checkout)))
	mux.Handle("/api/manage-payment-method", authMiddleware(http.HandlerFunc(billingHandler.Portal)))

	jobsMux := http.NewServeMux()
	jobHandler.RegisterRoutes(jobsMux, schedulerMiddleware)
	mux.Handle("/cron/", jobsMux)
	mux.Handle("/email/", jobsMux)
	mux.Handle("/api/cron/", http.StripPrefix("/api", jobsMux))
	mux.Handle("/api/email/", http.StripPrefix("/api", jobsMux))

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Everything else is the web UI, behind the access gate
	frontend, err := frontendHandler(cfg.FrontendURL, logger)
	if err != nil {
		return nil, err
	}
	mux.Handle("/", sessionMiddleware(accessGate(frontend)))

	// 6. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "webhook-id", "webhook-timestamp", "webhook-signature"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), nil
}

// frontendHandler proxies to the UI origin, or answers 404 when none is set.
func frontendHandler(rawURL string, logger zerolog.Logger) (http.Handler, error) {
	if rawURL == "" {
		return http.NotFoundHandler(), nil
	}
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid FRONTEND_URL %q", rawURL)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Frontend proxy failed")
		http.Error(w, "Bad gateway", http.StatusBadGateway)
	}
	return proxy, nil
}
