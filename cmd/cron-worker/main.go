package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qrseal/qrseal-backend/internal/app"
	"github.com/qrseal/qrseal-backend/internal/cron"
	"github.com/qrseal/qrseal-backend/pkg/metrics"
)

func main() {
	app.Main("cron-worker", run)
}

func run(ctx context.Context, rt *app.Runtime) error {
	cfg, logg := rt.Config, rt.Logger

	redisClient, err := rt.Redis(ctx)
	if err != nil {
		return err
	}
	stripeClient, err := rt.Stripe(ctx)
	if err != nil {
		return err
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// the webhook or callback normally settles payments; this worker catches the rest
	billing, err := app.NewBilling(rt, redisClient, stripeClient)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient.Locker(), redisClient.LockKey("cron-worker", lockScope(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:         logg,
		DB:             rt.DB,
		Repository:     billing.Outbox,
		Retention:      cfg.Outbox.Retention,
		ParkedAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}
	reconcile, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:   logg,
		Payments: billing.Payments,
		MinAge:   cfg.Cron.PendingPaymentAge,
		Limit:    cfg.Cron.PendingPaymentLimit,
	})
	if err != nil {
		return fmt.Errorf("payment reconcile job: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Jobs:       []cron.Job{retention, reconcile},
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}
	return service.Run(ctx)
}

// lockScope keeps environments sharing one Redis from blocking each other.
func lockScope(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
