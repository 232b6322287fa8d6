package service

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/dodo"

	"github.com/stretchr/testify/require"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

var testSigningKey = "whsec_" + base64.StdEncoding.EncodeToString([]byte("limetto-test-signing-secret-0001"))

type fakeProvider struct {
	mu              sync.Mutex
	subscriptions   map[string]*dodo.Subscription
	payments        map[string]*dodo.Payment
	customersMade   int
	subRequests     []dodo.CreateSubscriptionRequest
	paymentLink     string
	portalLink      string
	err             error
	createSubBlocks bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subscriptions: make(map[string]*dodo.Subscription),
		payments:      make(map[string]*dodo.Payment),
		paymentLink:   "https://test.checkout.dodopayments.com/sub_new",
		portalLink:    "https://test.customer.dodopayments.com/session",
	}
}

func (f *fakeProvider) CreateCustomer(_ context.Context, req dodo.CreateCustomerRequest) (*dodo.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.customersMade++
	return &dodo.Customer{CustomerID: "cus_" + strconv.Itoa(f.customersMade), Email: req.Email, Name: req.Name}, nil
}

func (f *fakeProvider) CreateSubscription(ctx context.Context, req dodo.CreateSubscriptionRequest) (*dodo.CreateSubscriptionResponse, error) {
	if f.createSubBlocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subRequests = append(f.subRequests, req)
	return &dodo.CreateSubscriptionResponse{SubscriptionID: "sub_new", PaymentLink: f.paymentLink, Metadata: req.Metadata}, nil
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*dodo.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, &dodo.APIError{StatusCode: http.StatusNotFound, Body: "subscription not found"}
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeProvider) GetPayment(_ context.Context, id string) (*dodo.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, &dodo.APIError{StatusCode: http.StatusNotFound, Body: "payment not found"}
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProvider) CreateCustomerPortalSession(_ context.Context, customerID string) (*dodo.PortalSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dodo.PortalSession{Link: f.portalLink + "?customer=" + customerID}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []NotificationKind
	for _, m := range n.sent {
		out = append(out, m.Kind)
	}
	return out
}

// signedHeaders signs payload the way Dodo Payments does.
func signedHeaders(t *testing.T, msgID string, payload []byte) http.Header {
	t.Helper()
	wh, err := standardwebhooks.NewWebhook(testSigningKey)
	require.NoError(t, err)
	now := time.Now()
	sig, err := wh.Sign(msgID, now, payload)
	require.NoError(t, err)

	h := http.Header{}
	h.Set("webhook-id", msgID)
	h.Set("webhook-timestamp", strconv.FormatInt(now.Unix(), 10))
	h.Set("webhook-signature", sig)
	return h
}
