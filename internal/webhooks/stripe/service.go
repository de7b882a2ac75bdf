package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/qrseal/qrseal-backend/internal/payments"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

type reconciler interface {
	Reconcile(ctx context.Context, input payments.ReconcileInput) (*payments.ReconcileResult, error)
}

type ServiceParams struct {
	Payments reconciler
	Logger   *logger.Logger
}

// Service turns Stripe Checkout events into payment reconciliations.
type Service struct {
	payments reconciler
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payments reconciler required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var outcome payments.Outcome
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		outcome = "" // derived from the session's payment status
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		outcome = payments.OutcomeSuccess
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		outcome = payments.OutcomeFailure
	default:
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	merchantOrderID := payments.MerchantOrderIDFromSession(&sess)
	if merchantOrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "merchant order id missing from session")
	}

	status := payments.StatusFromSession(&sess)
	if outcome == "" {
		outcome = status.Outcome
	}
	reason := status.Reason
	if outcome == payments.OutcomeFailure && reason == "" {
		reason = string(event.Type)
	}

	res, err := s.payments.Reconcile(ctx, payments.ReconcileInput{
		MerchantOrderID:      merchantOrderID,
		Outcome:              outcome,
		GatewayTransactionID: status.TransactionID,
		FailureReason:        reason,
		Channel:              payments.ChannelWebhook,
	})
	if err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithMerchantOrderID(ctx, merchantOrderID)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"stripe_event_id": event.ID,
			"event_type":      string(event.Type),
			"applied":         res.Applied,
		})
		s.logg.Info(logCtx, "stripe checkout event reconciled")
	}
	return nil
}
