// Package billing queries the external subscription-billing system. It is a
// pull-only interface: nothing here receives notifications.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// ErrNotConfigured is returned when no billing secret key is set.
var ErrNotConfigured = errors.New("billing: not configured")

// Subscription is the subset of a billing subscription the ledger consumes.
type Subscription struct {
	ID                string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// Config holds billing client settings.
type Config struct {
	SecretKey string
	// APIBase overrides the API endpoint, e.g. stripe-mock or a test server.
	APIBase    string
	HTTPClient *http.Client
}

// StripeClient lists subscriptions through the Stripe API.
type StripeClient struct {
	api        *client.API
	configured bool
}

// NewStripeClient creates a client with its own backends, leaving the
// package-level stripe.Key untouched.
func NewStripeClient(cfg *Config) *StripeClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		MaxNetworkRetries: stripe.Int64(1),
	}
	if cfg.APIBase != "" {
		backendCfg.URL = stripe.String(cfg.APIBase)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
	return &StripeClient{api: api, configured: cfg.SecretKey != ""}
}

// ListActiveSubscriptions returns the customer's active subscriptions. The
// result is never cached.
func (c *StripeClient) ListActiveSubscriptions(ctx context.Context, customerRef string) ([]Subscription, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerRef),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx

	var subs []Subscription
	iter := c.api.Subscriptions.List(params)
	for iter.Next() {
		s := iter.Subscription()
		subs = append(subs, Subscription{
			ID:                s.ID,
			CurrentPeriodEnd:  time.Unix(s.CurrentPeriodEnd, 0).UTC(),
			CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

// Latest returns the subscription whose period ends last, or false if none.
func Latest(subs []Subscription) (Subscription, bool) {
	var best Subscription
	found := false
	for _, s := range subs {
		if !found || s.CurrentPeriodEnd.After(best.CurrentPeriodEnd) {
			best = s
			found = true
		}
	}
	return best, found
}
