package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

// Client holds the process-wide Stripe credentials. Stripe's checkout session
// helpers read stripe.Key, so NewClient must run before any session call.
type Client struct {
	mode          Mode
	webhookSecret string
}

// NewClient validates the configured key against the configured mode and
// installs it for the checkout session helpers.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := Mode(cfg.Environment())
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe environment %q is not one of test, live", mode)
	}

	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case key == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errors.New("stripe webhook secret is required")
	case !hasAnyPrefix(key, prefixes):
		return nil, fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
	}

	stripe.Key = key
	stripe.SetAppInfo(&stripe.AppInfo{Name: "qrseal-backend"})

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe configured")
	}
	return &Client{mode: mode, webhookSecret: secret}, nil
}

// Environment reports the account mode ("test" or "live").
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

// SigningSecret is the endpoint secret used to verify webhook signatures.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// CheckoutSessions exposes Checkout session create/read calls.
func (c *Client) CheckoutSessions() CheckoutSessions {
	return CheckoutSessions{}
}

// CheckoutSessions forwards to stripe-go's checkout session helpers.
type CheckoutSessions struct{}

func (CheckoutSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (CheckoutSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.Get(id, params)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
