// Package dodo is a small client for the Dodo Payments REST API covering the
// calls the billing and webhook flows need.
package dodo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxErrorBody = 4 << 10

// Client is the subset of the Dodo Payments API used by this service.
type Client interface {
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error)
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*CreateSubscriptionResponse, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	CreateCustomerPortalSession(ctx context.Context, customerID string) (*PortalSession, error)
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a Client for the given API origin and bearer key.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) Client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With().Str("service", "DodoClient").Logger(),
	}
}

func (c *client) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	var out Customer
	if err := c.do(ctx, http.MethodPost, "/customers", req, &out); err != nil {
		return nil, fmt.Errorf("creating customer: %w", err)
	}
	if out.CustomerID == "" {
		return nil, fmt.Errorf("creating customer: response has no customer_id")
	}
	return &out, nil
}

func (c *client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*CreateSubscriptionResponse, error) {
	var out CreateSubscriptionResponse
	if err := c.do(ctx, http.MethodPost, "/subscriptions", req, &out); err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}
	return &out, nil
}

func (c *client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var out Subscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(subscriptionID), nil, &out); err != nil {
		return nil, fmt.Errorf("retrieving subscription %s: %w", subscriptionID, err)
	}
	return &out, nil
}

func (c *client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return nil, fmt.Errorf("retrieving payment %s: %w", paymentID, err)
	}
	return &out, nil
}

func (c *client) CreateCustomerPortalSession(ctx context.Context, customerID string) (*PortalSession, error) {
	var out PortalSession
	path := "/customers/" + url.PathEscape(customerID) + "/customer-portal/session"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, fmt.Errorf("creating portal session for customer %s: %w", customerID, err)
	}
	return &out, nil
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error().
			Str("method", method).
			Str("path", path).
			Int("status_code", resp.StatusCode).
			Str("error_body", string(bodyBytes)).
			Msg("Dodo Payments returned error")
		return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
