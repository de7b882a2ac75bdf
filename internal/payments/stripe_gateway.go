package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/qrseal/qrseal-backend/pkg/config"
)

const (
	metadataMerchantOrderID = "merchant_order_id"
	merchantOrderIDPattern  = "{MERCHANT_ORDER_ID}"
)

// CheckoutSessionAPI is the slice of Stripe Checkout the gateway calls.
type CheckoutSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGateway opens Stripe Checkout sessions and reads their state back. Every call
// is bounded by timeout.
type StripeGateway struct {
	sessions   CheckoutSessionAPI
	successURL string
	cancelURL  string
	timeout    time.Duration
}

// NewStripeGateway builds a gateway over sessions, normally the one returned by
// pkg/stripe.Client.CheckoutSessions.
func NewStripeGateway(sessions CheckoutSessionAPI, stripeCfg config.StripeConfig, timeout time.Duration) (*StripeGateway, error) {
	if sessions == nil {
		return nil, fmt.Errorf("checkout session api is required")
	}
	if strings.TrimSpace(stripeCfg.SuccessURL) == "" || strings.TrimSpace(stripeCfg.CancelURL) == "" {
		return nil, fmt.Errorf("stripe success and cancel urls are required")
	}
	return newStripeGateway(sessions, stripeCfg.SuccessURL, stripeCfg.CancelURL, timeout), nil
}

func newStripeGateway(api CheckoutSessionAPI, successURL, cancelURL string, timeout time.Duration) *StripeGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeGateway{sessions: api, successURL: successURL, cancelURL: cancelURL, timeout: timeout}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	metadata := map[string]string{metadataMerchantOrderID: req.MerchantOrderID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withMerchantOrderID(g.successURL, req.MerchantOrderID)),
		CancelURL:         stripe.String(withMerchantOrderID(g.cancelURL, req.MerchantOrderID)),
		ClientReferenceID: stripe.String(req.MerchantOrderID),
		Metadata:          metadata,
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(minorUnits(req)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{metadataMerchantOrderID: req.MerchantOrderID},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.MerchantOrderID)

	sess, err := g.sessions.New(params)
	if err != nil {
		return nil, classifyStripeError(ctx, err)
	}
	return &Session{ID: sess.ID, RedirectURL: sess.URL}, nil
}

func (g *StripeGateway) SessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.sessions.Get(sessionID, params)
	if err != nil {
		return nil, classifyStripeError(ctx, err)
	}
	return StatusFromSession(sess), nil
}

// StatusFromSession maps a Checkout session onto a gateway outcome.
func StatusFromSession(sess *stripe.CheckoutSession) *SessionStatus {
	if sess == nil {
		return &SessionStatus{Outcome: OutcomePending}
	}
	status := &SessionStatus{SessionID: sess.ID, Outcome: OutcomePending}
	if sess.PaymentIntent != nil {
		status.TransactionID = sess.PaymentIntent.ID
	}
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		status.Outcome = OutcomeSuccess
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		status.Outcome = OutcomeFailure
		status.Reason = "checkout session expired"
	}
	return status
}

// MerchantOrderIDFromSession reads the merchant order id stamped on a session.
func MerchantOrderIDFromSession(sess *stripe.CheckoutSession) string {
	if sess == nil {
		return ""
	}
	if sess.ClientReferenceID != "" {
		return sess.ClientReferenceID
	}
	return sess.Metadata[metadataMerchantOrderID]
}

func minorUnits(req SessionRequest) int64 {
	return req.Amount.Mul(hundred).Round(0).IntPart()
}

func withMerchantOrderID(url, merchantOrderID string) string {
	return strings.ReplaceAll(url, merchantOrderIDPattern, merchantOrderID)
}

func classifyStripeError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("stripe request timed out: %w", err)
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			if stripeErr.HTTPStatusCode >= http.StatusBadRequest && stripeErr.HTTPStatusCode < http.StatusInternalServerError &&
				stripeErr.HTTPStatusCode != http.StatusTooManyRequests {
				return &RejectedError{Reason: stripeErr.Msg, Err: err}
			}
		}
	}
	return fmt.Errorf("stripe request failed: %w", err)
}
