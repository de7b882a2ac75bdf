package webhooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/qrseal/qrseal-backend/api/responses"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

const (
	maxWebhookBody  = 64 << 10
	signatureHeader = "Stripe-Signature"
)

var errNoSignature = errors.New("missing " + signatureHeader + " header")

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

type webhookAck struct {
	Received bool `json:"received"`
}

// StripeWebhook reconciles checkout session events. Every delivery gets a
// 200: received=false means the signature was not accepted, processing
// failures still ack and are left to the scheduled reconciler.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	h := &stripeHook{svc: svc, client: client, guard: guard, logg: logg}
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, webhookAck{Received: h.receive(r)})
	}
}

type stripeHook struct {
	svc    StripeWebhookService
	client stripeClient
	guard  stripeWebhookGuard
	logg   *logger.Logger
}

func (h *stripeHook) receive(r *http.Request) bool {
	ctx := r.Context()
	if h.svc == nil || h.client == nil {
		h.warn(ctx, "stripe webhook not configured", nil)
		return false
	}
	event, err := h.verify(r)
	if err != nil {
		h.warn(ctx, "stripe delivery rejected", err)
		return false
	}
	if h.logg != nil {
		ctx = h.logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		})
	}
	h.process(ctx, event)
	return true
}

func (h *stripeHook) verify(r *http.Request) (*stripe.Event, error) {
	sig := r.Header.Get(signatureHeader)
	if sig == "" {
		return nil, errNoSignature
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, h.client.SigningSecret(), webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// process hands a verified event to the service at most once per guard
// window. A failed attempt releases the claim so a redelivery can retry.
func (h *stripeHook) process(ctx context.Context, event *stripe.Event) {
	if h.guard != nil {
		first, err := h.guard.Claim(ctx, event.ID)
		switch {
		case err != nil:
			// reconciliation is idempotent on its own
			h.warn(ctx, "stripe event guard unavailable", err)
		case !first:
			return
		}
	}

	if err := h.svc.HandleEvent(ctx, event); err != nil {
		if h.guard != nil {
			_ = h.guard.Release(ctx, event.ID)
		}
		if h.logg != nil {
			h.logg.Error(ctx, "stripe event processing failed", err)
		}
		return
	}
	if h.logg != nil {
		h.logg.Info(ctx, "stripe event processed")
	}
}

func (h *stripeHook) warn(ctx context.Context, msg string, err error) {
	if h.logg == nil {
		return
	}
	if err != nil {
		ctx = h.logg.WithField(ctx, "error", err.Error())
	}
	h.logg.Warn(ctx, msg)
}
