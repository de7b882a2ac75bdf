package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/qrseal/qrseal-backend/internal/payments"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

const (
	defaultPendingPaymentAge   = 10 * time.Minute
	defaultPendingPaymentLimit = 100
)

type paymentSyncer interface {
	ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error)
	Sync(ctx context.Context, merchantOrderID string, channel payments.Channel) (*models.Payment, error)
}

type PaymentReconcileJobParams struct {
	Logger   *logger.Logger
	Payments paymentSyncer
	MinAge   time.Duration
	Limit    int
}

// NewPaymentReconcileJob polls the gateway for payments that stayed pending longer
// than MinAge, covering lost webhooks and abandoned redirects.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultPendingPaymentAge
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultPendingPaymentLimit
	}
	return &paymentReconcileJob{logg: params.Logger, payments: params.Payments, minAge: minAge, limit: limit}, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	payments paymentSyncer
	minAge   time.Duration
	limit    int
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	pending, err := j.payments.ListPending(ctx, j.minAge, j.limit)
	if err != nil {
		return fmt.Errorf("list pending payments: %w", err)
	}

	var (
		errs      error
		completed int
		failed    int
	)
	for _, p := range pending {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		synced, err := j.payments.Sync(ctx, p.MerchantOrderID, payments.ChannelScheduled)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sync %s: %w", p.MerchantOrderID, err))
			continue
		}
		switch synced.Status {
		case enums.PaymentStatusCompleted:
			completed++
		case enums.PaymentStatusFailed:
			failed++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   len(pending),
		"completed": completed,
		"failed":    failed,
		"errors":    len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "pending payment reconciliation complete")
	return errs
}
