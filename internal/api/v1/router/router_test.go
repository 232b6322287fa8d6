package router

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/config"
	"github.com/VmalRaj-Dev/limetto/internal/dodo"
	"github.com/VmalRaj-Dev/limetto/internal/pubsub"
	"github.com/VmalRaj-Dev/limetto/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret  = "router-test-jwt-secret-with-enough-length"
	testCronSecret = "cron-secret"
)

var testWebhookKey = "whsec_" + base64.StdEncoding.EncodeToString([]byte("router-test-webhook-key"))

var errProviderDown = errors.New("provider down")

// downProvider fails every call.
type downProvider struct{}

func (downProvider) CreateCustomer(context.Context, dodo.CreateCustomerRequest) (*dodo.Customer, error) {
	return nil, errProviderDown
}

func (downProvider) CreateSubscription(context.Context, dodo.CreateSubscriptionRequest) (*dodo.CreateSubscriptionResponse, error) {
	return nil, errProviderDown
}

func (downProvider) GetSubscription(context.Context, string) (*dodo.Subscription, error) {
	return nil, errProviderDown
}

func (downProvider) GetPayment(context.Context, string) (*dodo.Payment, error) {
	return nil, errProviderDown
}

func (downProvider) CreateCustomerPortalSession(context.Context, string) (*dodo.PortalSession, error) {
	return nil, errProviderDown
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Environment:              "development",
		BaseURL:                  "http://localhost:3000",
		JWTSecret:                testJWTSecret,
		AuthCookieName:           "sb-access-token",
		DodoWebhookKey:           testWebhookKey,
		DodoProductID:            "pdt_generic",
		CheckoutTimeoutSec:       5,
		CronSecret:               testCronSecret,
		ReminderAmount:           29.99,
		ReminderCurrency:         "USD",
		PubSubNotificationsTopic: "billing-notifications",
		ProtectedPaths:           []string{"/dashboard", "/profile", "/settings"},
		SubscriptionExemptPaths:  []string{"/subscribe", "/api/checkout/subscription"},
	}
	h, err := NewHandler(cfg, Deps{
		Profiles:  repository.NewMemoryProfileRepo(),
		Publisher: pubsub.NewLogPublisher(zerolog.Nop()),
		Provider:  downProvider{},
	}, zerolog.Nop())
	require.NoError(t, err)
	return h
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": "ada@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestHandler(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookRoutes(t *testing.T) {
	h := newTestHandler(t)
	body := []byte(`{"type":"refund.succeeded","business_id":"bus_1","timestamp":"2026-03-01T10:00:00Z","data":{"payload_type":"Refund"}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(string(body)))
	rec := serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	wh, err := standardwebhooks.NewWebhook(testWebhookKey)
	require.NoError(t, err)
	now := time.Now()
	sig, err := wh.Sign("msg_1", now, body)
	require.NoError(t, err)

	for _, target := range []string{"/api/webhook", "/v1/webhooks/dodo"} {
		req = httptest.NewRequest(http.MethodPost, target, strings.NewReader(string(body)))
		req.Header.Set("webhook-id", "msg_1")
		req.Header.Set("webhook-timestamp", strconv.FormatInt(now.Unix(), 10))
		req.Header.Set("webhook-signature", sig)
		rec = serve(h, req)
		require.Equal(t, http.StatusOK, rec.Code, target)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "event ignored", resp["message"])
	}
}

func TestCronRoutesRequireSchedulerAuth(t *testing.T) {
	h := newTestHandler(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/cron/update-trials", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, target := range []string{"/cron/update-trials", "/api/cron/update-trials"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer "+testCronSecret)
		rec = serve(h, req)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.JSONEq(t, `{"success":true,"updated":0}`, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/email/payment-reminders", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	rec = serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
}

func TestAccessGateOnFrontendRoutes(t *testing.T) {
	h := newTestHandler(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/login?redirectedFrom=%2Fdashboard", rec.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: userToken(t, uuid.NewString())})
	rec = serve(h, req)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/subscribe", rec.Header().Get("Location"))

	// No frontend configured: ungated pages fall through to 404.
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/pricing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutValidation(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/checkout/subscription", strings.NewReader(`{"email":"ada@example.com"}`))
	rec := serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing required signup or billing fields"}`, rec.Body.String())

	payload := `{"supabaseUserId":"` + uuid.NewString() + `","supabaseCategoryId":"cat","email":"ada@example.com","name":"Ada",
		"billing":{"street":"1 Main St","city":"Springfield","state":"IL","country":"Narnia","zipcode":"62701"}}`
	rec = serve(h, httptest.NewRequest(http.MethodPost, "/v1/checkout/subscription", strings.NewReader(payload)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid country: Narnia"}`, rec.Body.String())

	// Country is the only required address field.
	countryOnly := `{"supabaseUserId":"` + uuid.NewString() + `","supabaseCategoryId":"cat","email":"ada@example.com","name":"Ada",
		"billing":{"country":"Narnia"}}`
	rec = serve(h, httptest.NewRequest(http.MethodPost, "/v1/checkout/subscription", strings.NewReader(countryOnly)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid country: Narnia"}`, rec.Body.String())

	noCountry := `{"supabaseUserId":"` + uuid.NewString() + `","supabaseCategoryId":"cat","email":"ada@example.com","name":"Ada",
		"billing":{"street":"1 Main St","city":"Springfield","state":"IL","zipcode":"62701"}}`
	rec = serve(h, httptest.NewRequest(http.MethodPost, "/v1/checkout/subscription", strings.NewReader(noCountry)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing required signup or billing fields"}`, rec.Body.String())
}

func TestProfileLifecycle(t *testing.T) {
	h := newTestHandler(t)
	userID := uuid.NewString()
	token := userToken(t, userID)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/profiles/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/profiles/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(h, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/profiles/me", strings.NewReader(`{"name":"Ada","email":"ada@example.com"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(h, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, userID, created["id"])
	assert.Equal(t, "none", created["subscription_status"])

	req = httptest.NewRequest(http.MethodPost, "/api/manage-payment-method", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Customer ID not found for this user."}`, rec.Body.String())
}

func TestFrontendHandlerRejectsBadURL(t *testing.T) {
	_, err := frontendHandler("not a url", zerolog.Nop())
	assert.Error(t, err)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page " + r.URL.Path))
	}))
	defer upstream.Close()

	proxy, err := frontendHandler(upstream.URL, zerolog.Nop())
	require.NoError(t, err)
	rec := serve(proxy, httptest.NewRequest(http.MethodGet, "/pricing", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page /pricing", rec.Body.String())
}
