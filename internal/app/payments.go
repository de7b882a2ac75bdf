package app

import (
	"fmt"

	"github.com/qrseal/qrseal-backend/internal/ledger"
	"github.com/qrseal/qrseal-backend/internal/notifications"
	"github.com/qrseal/qrseal-backend/internal/payments"
	"github.com/qrseal/qrseal-backend/pkg/outbox"
	"github.com/qrseal/qrseal-backend/pkg/redis"
	"github.com/qrseal/qrseal-backend/pkg/stripe"
)

const paymentLockScope = "payment"

// Billing is the ledger and payment reconciler pair both the API and the cron
// worker run on.
type Billing struct {
	Pricer     payments.Pricer
	Outbox     *outbox.Repository
	Dispatcher notifications.Dispatcher
	Ledger     ledger.Service
	Payments   payments.Service
}

// NewBilling wires the credit ledger, the outbox-backed notification
// dispatcher and the Stripe-backed payment service.
func NewBilling(rt *Runtime, redisClient *redis.Client, stripeClient *stripe.Client) (*Billing, error) {
	cfg := rt.Config
	b := &Billing{
		Pricer: payments.NewPricer(cfg.Payments),
		Outbox: outbox.NewRepository(rt.DB.DB()),
	}

	var err error
	b.Dispatcher, err = notifications.NewOutboxDispatcher(rt.DB, outbox.NewService(b.Outbox, rt.Logger), rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("notification dispatcher: %w", err)
	}

	b.Ledger, err = ledger.NewService(ledger.ServiceParams{
		Repository: ledger.NewRepository(rt.DB.DB()),
		Tx:         rt.DB,
		Logger:     rt.Logger,
		Quote:      b.Pricer.TopUpCost,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	gateway, err := payments.NewStripeGateway(stripeClient.CheckoutSessions(), cfg.Stripe, cfg.Payments.GatewayTimeout)
	if err != nil {
		return nil, fmt.Errorf("stripe gateway: %w", err)
	}

	b.Payments, err = payments.NewService(payments.ServiceParams{
		Repository: payments.NewRepository(rt.DB.DB()),
		Tx:         rt.DB,
		Ledger:     b.Ledger,
		Gateway:    gateway,
		Dispatcher: b.Dispatcher,
		Locker:     redisClient.Locker(),
		LockKey: func(merchantOrderID string) string {
			return redisClient.LockKey(paymentLockScope, merchantOrderID)
		},
		Config: payments.Config{
			Pricer:           b.Pricer,
			TestChargeAmount: cfg.Payments.TestChargeAmountDecimal(),
			MinTopupCredits:  cfg.Payments.MinTopupCredits,
			LockTTL:          cfg.Payments.ReconcileLockTTL,
		},
		Logger: rt.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}
	return b, nil
}
