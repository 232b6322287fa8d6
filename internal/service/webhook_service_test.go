package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/dodo"
	"github.com/VmalRaj-Dev/limetto/internal/model"
	"github.com/VmalRaj-Dev/limetto/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookFixture struct {
	svc      WebhookService
	repo     *repository.MemoryProfileRepo
	provider *fakeProvider
	notifier *recordingNotifier
	userID   string
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	verifier, err := NewWebhookVerifier(testSigningKey)
	require.NoError(t, err)

	f := &webhookFixture{
		repo:     repository.NewMemoryProfileRepo(),
		provider: newFakeProvider(),
		notifier: &recordingNotifier{},
		userID:   uuid.NewString(),
	}
	f.repo.Put(model.Profile{ID: f.userID, Name: "Ada", Email: "ada@example.com", SubscriptionStatus: model.StatusNone})
	f.svc = NewWebhookService(verifier, f.provider, f.repo, f.notifier, nil, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	return f
}

func (f *webhookFixture) metadata() map[string]string {
	return map[string]string{
		dodo.MetaUserID:     f.userID,
		dodo.MetaCategoryID: "cat_saas",
		dodo.MetaCustomerID: "cus_meta",
	}
}

func eventBody(t *testing.T, eventType, payloadType, idField, id string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"type":        eventType,
		"business_id": "bus_1",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"payload_type": payloadType,
			idField:        id,
		},
	})
	require.NoError(t, err)
	return body
}

func (f *webhookFixture) deliver(t *testing.T, msgID string, body []byte) (*WebhookResult, error) {
	t.Helper()
	return f.svc.HandleWebhook(context.Background(), signedHeaders(t, msgID, body), body)
}

func (f *webhookFixture) profile(t *testing.T) *model.Profile {
	t.Helper()
	p, err := f.repo.GetProfileByID(context.Background(), f.userID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	body := eventBody(t, "subscription.active", "Subscription", "subscription_id", "sub_1")
	headers := signedHeaders(t, "msg_1", body)
	headers.Set("webhook-signature", "v1,"+"aW52YWxpZA==")

	_, err := f.svc.HandleWebhook(context.Background(), headers, body)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tampered := eventBody(t, "subscription.active", "Subscription", "subscription_id", "sub_2")
	_, err = f.svc.HandleWebhook(context.Background(), signedHeaders(t, "msg_2", body), tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.Equal(t, model.StatusNone, f.profile(t).SubscriptionStatus)
	assert.Empty(t, f.notifier.kinds())
}

func TestWebhookWithoutVerifierIsNotConfigured(t *testing.T) {
	svc := NewWebhookService(nil, newFakeProvider(), repository.NewMemoryProfileRepo(), nil, nil, validator.New(), zerolog.Nop())
	_, err := svc.HandleWebhook(context.Background(), nil, []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWebhookSubscriptionActiveStartsTrial(t *testing.T) {
	f := newWebhookFixture(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.provider.subscriptions["sub_1"] = &dodo.Subscription{
		SubscriptionID:  "sub_1",
		Status:          "active",
		CreatedAt:       created,
		NextBillingDate: created.AddDate(0, 0, 14),
		TrialPeriodDays: 14,
		Customer:        dodo.Customer{CustomerID: "cus_sub"},
		Metadata:        f.metadata(),
	}
	body := eventBody(t, "subscription.active", "Subscription", "subscription_id", "sub_1")

	res, err := f.deliver(t, "msg_1", body)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	p := f.profile(t)
	assert.Equal(t, model.StatusTrialing, p.SubscriptionStatus)
	assert.True(t, p.IsTrialing)
	assert.True(t, p.HasEverTrialed)
	require.NotNil(t, p.TrialEndsAt)
	assert.True(t, p.TrialEndsAt.Equal(created.AddDate(0, 0, 14)))
	require.NotNil(t, p.NextBillingAt)
	assert.True(t, p.NextBillingAt.Equal(created.AddDate(0, 0, 14)))
	assert.Equal(t, "cat_saas", *p.ChosenCategoryID)
	assert.Equal(t, "sub_1", *p.DodoSubscriptionID)
	assert.Equal(t, "cus_meta", *p.DodoCustomerID)
	assert.NotNil(t, p.SubscribedAt)
	assert.Equal(t, []NotificationKind{NotifyTrialActivated}, f.notifier.kinds())

	// Redelivery is acknowledged without reapplying side effects.
	res, err = f.deliver(t, "msg_1", body)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Len(t, f.notifier.kinds(), 1)
}

func TestWebhookSubscriptionActivePaidAndCancelled(t *testing.T) {
	f := newWebhookFixture(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	meta := f.metadata()
	delete(meta, dodo.MetaCustomerID)
	f.provider.subscriptions["sub_1"] = &dodo.Subscription{
		SubscriptionID:  "sub_1",
		Status:          "active",
		CreatedAt:       created,
		NextBillingDate: created.AddDate(0, 1, 0),
		Customer:        dodo.Customer{CustomerID: "cus_sub"},
		Metadata:        meta,
	}

	_, err := f.deliver(t, "msg_1", eventBody(t, "subscription.active", "Subscription", "subscription_id", "sub_1"))
	require.NoError(t, err)
	p := f.profile(t)
	assert.Equal(t, model.StatusActive, p.SubscriptionStatus)
	assert.False(t, p.IsTrialing)
	assert.Nil(t, p.TrialEndsAt)
	require.NotNil(t, p.NextBillingAt)
	assert.True(t, p.NextBillingAt.Equal(created.AddDate(0, 1, 0)))
	assert.True(t, p.HasEverTrialed)
	assert.Equal(t, "cus_sub", *p.DodoCustomerID)

	res, err := f.deliver(t, "msg_2", eventBody(t, "subscription.cancelled", "Subscription", "subscription_id", "sub_1"))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	p = f.profile(t)
	assert.Equal(t, model.StatusCancelled, p.SubscriptionStatus)
	assert.True(t, p.HasEverTrialed)

	res, err = f.deliver(t, "msg_3", eventBody(t, "subscription.failed", "Subscription", "subscription_id", "sub_1"))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, []NotificationKind{NotifySubscriptionStarted, NotifySubscriptionCancelled}, f.notifier.kinds())
}

func TestWebhookSubscriptionRenewedOncePerPeriod(t *testing.T) {
	f := newWebhookFixture(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := created
	f.repo.Put(model.Profile{
		ID:                 f.userID,
		Email:              "ada@example.com",
		SubscriptionStatus: model.StatusActive,
		DodoSubscriptionID: strPtrT("sub_1"),
		SubscribedAt:       &first,
		HasEverTrialed:     true,
	})
	f.provider.subscriptions["sub_1"] = &dodo.Subscription{
		SubscriptionID:      "sub_1",
		Status:              "active",
		CreatedAt:           created,
		PreviousBillingDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		NextBillingDate:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Metadata:            f.metadata(),
	}
	body := eventBody(t, "subscription.renewed", "Subscription", "subscription_id", "sub_1")

	res, err := f.deliver(t, "msg_r1", body)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = f.deliver(t, "msg_r1", body)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	p := f.profile(t)
	assert.Equal(t, model.StatusActive, p.SubscriptionStatus)
	assert.False(t, p.IsTrialing)
	assert.Nil(t, p.TrialEndsAt)
	require.NotNil(t, p.NextBillingAt)
	assert.True(t, p.NextBillingAt.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []NotificationKind{NotifySubscriptionRenewed}, f.notifier.kinds())
}

func TestWebhookStatusOnlyEvents(t *testing.T) {
	f := newWebhookFixture(t)
	f.provider.subscriptions["sub_1"] = &dodo.Subscription{SubscriptionID: "sub_1", Status: "on_hold", Metadata: f.metadata()}

	_, err := f.deliver(t, "msg_1", eventBody(t, "subscription.on_hold", "Subscription", "subscription_id", "sub_1"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnHold, f.profile(t).SubscriptionStatus)

	_, err = f.deliver(t, "msg_2", eventBody(t, "subscription.trial_end", "Subscription", "subscription_id", "sub_1"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusTrialEnded, f.profile(t).SubscriptionStatus)
	assert.Empty(t, f.notifier.kinds())
}

func TestWebhookSubscriptionErrors(t *testing.T) {
	f := newWebhookFixture(t)

	f.provider.subscriptions["sub_nometa"] = &dodo.Subscription{SubscriptionID: "sub_nometa", Metadata: map[string]string{dodo.MetaUserID: "not-a-uuid"}}
	_, err := f.deliver(t, "msg_1", eventBody(t, "subscription.active", "Subscription", "subscription_id", "sub_nometa"))
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	f.provider.subscriptions["sub_ghost"] = &dodo.Subscription{SubscriptionID: "sub_ghost", Metadata: map[string]string{
		dodo.MetaUserID:     uuid.NewString(),
		dodo.MetaCategoryID: "cat",
	}}
	_, err = f.deliver(t, "msg_2", eventBody(t, "subscription.active", "Subscription", "subscription_id", "sub_ghost"))
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = f.deliver(t, "msg_3", eventBody(t, "subscription.active", "Subscription", "subscription_id", "sub_missing"))
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = f.deliver(t, "msg_4", eventBody(t, "subscription.active", "Payment", "payment_id", "pay_1"))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	assert.Equal(t, model.StatusNone, f.profile(t).SubscriptionStatus)
}

func TestWebhookIgnoresUnsupportedEvents(t *testing.T) {
	f := newWebhookFixture(t)
	res, err := f.deliver(t, "msg_1", eventBody(t, "refund.succeeded", "Refund", "refund_id", "ref_1"))
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
	require.NotNil(t, res)
	assert.Equal(t, "refund.succeeded", res.EventType)
}

func TestWebhookPaymentSucceededIsIdempotent(t *testing.T) {
	f := newWebhookFixture(t)
	paidAt := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC)
	f.provider.payments["pay_1"] = &dodo.Payment{
		PaymentID:   "pay_1",
		Status:      "succeeded",
		Customer:    dodo.Customer{CustomerID: "cus_pay"},
		Metadata:    f.metadata(),
		CreatedAt:   paidAt,
		TotalAmount: 2999,
		Currency:    "USD",
	}
	body := eventBody(t, "payment.succeeded", "Payment", "payment_id", "pay_1")

	res, err := f.deliver(t, "msg_p1", body)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = f.deliver(t, "msg_p1", body)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	p := f.profile(t)
	assert.Equal(t, model.PaymentSucceeded, *p.PaymentStatus)
	assert.True(t, p.LastPaymentAt.Equal(paidAt))
	assert.Equal(t, "pay_1", *p.DodoLastPaymentID)
	assert.Equal(t, "cus_pay", *p.DodoCustomerID, "payment customer wins over metadata")

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, NotifyPaymentSuccess, f.notifier.sent[0].Kind)
	assert.InDelta(t, 29.99, f.notifier.sent[0].Amount, 0.001)
}

func TestWebhookNotificationFailureDoesNotFailDelivery(t *testing.T) {
	f := newWebhookFixture(t)
	f.notifier.err = errors.New("broker down")
	f.provider.payments["pay_1"] = &dodo.Payment{PaymentID: "pay_1", Metadata: f.metadata(), CreatedAt: time.Now().UTC()}

	res, err := f.deliver(t, "msg_p1", eventBody(t, "payment.succeeded", "Payment", "payment_id", "pay_1"))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "cus_meta", *f.profile(t).DodoCustomerID)
}

func TestWebhookPaymentFailed(t *testing.T) {
	f := newWebhookFixture(t)
	f.provider.payments["pay_2"] = &dodo.Payment{PaymentID: "pay_2", Status: "failed", Metadata: f.metadata()}

	for i := 0; i < 2; i++ {
		res, err := f.deliver(t, "msg_f1", eventBody(t, "payment.failed", "Payment", "payment_id", "pay_2"))
		require.NoError(t, err)
		assert.True(t, res.Applied)
	}
	assert.Equal(t, model.PaymentFailed, *f.profile(t).PaymentStatus)

	f.provider.payments["pay_3"] = &dodo.Payment{PaymentID: "pay_3"}
	_, err := f.deliver(t, "msg_f2", eventBody(t, "payment.failed", "Payment", "payment_id", "pay_3"))
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestWebhookCancelForReplacedSubscriptionIsIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	f.repo.Put(model.Profile{
		ID:                 f.userID,
		Email:              "ada@example.com",
		SubscriptionStatus: model.StatusActive,
		DodoSubscriptionID: strPtrT("sub_new"),
	})
	f.provider.subscriptions["sub_old"] = &dodo.Subscription{SubscriptionID: "sub_old", Status: "cancelled", Metadata: f.metadata()}

	res, err := f.deliver(t, "msg_late", eventBody(t, "subscription.cancelled", "Subscription", "subscription_id", "sub_old"))
	require.NoError(t, err)
	assert.False(t, res.Applied)

	p := f.profile(t)
	assert.Equal(t, model.StatusActive, p.SubscriptionStatus)
	assert.Equal(t, "sub_new", *p.DodoSubscriptionID)
	assert.Empty(t, f.notifier.kinds())
}

func TestWebhookPaymentMatchedByCustomer(t *testing.T) {
	f := newWebhookFixture(t)
	_, err := f.repo.SetCustomerID(context.Background(), f.userID, "cus_known")
	require.NoError(t, err)
	f.provider.payments["pay_c"] = &dodo.Payment{
		PaymentID: "pay_c",
		Status:    "succeeded",
		Customer:  dodo.Customer{CustomerID: "cus_known"},
		CreatedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}

	res, err := f.deliver(t, "msg_c1", eventBody(t, "payment.succeeded", "Payment", "payment_id", "pay_c"))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	p := f.profile(t)
	assert.Equal(t, model.PaymentSucceeded, *p.PaymentStatus)
	assert.Equal(t, "pay_c", *p.DodoLastPaymentID)

	f.provider.payments["pay_u"] = &dodo.Payment{PaymentID: "pay_u", Customer: dodo.Customer{CustomerID: "cus_unknown"}}
	_, err = f.deliver(t, "msg_c2", eventBody(t, "payment.failed", "Payment", "payment_id", "pay_u"))
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestParseEventType(t *testing.T) {
	evt, err := ParseEventType("subscription.trial_end")
	require.NoError(t, err)
	assert.Equal(t, EventSubscriptionTrialEnd, evt)

	_, err = ParseEventType("subscription.plan_changed")
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
}

func strPtrT(s string) *string { return &s }
