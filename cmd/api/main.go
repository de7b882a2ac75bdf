package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qrseal/qrseal-backend/api/routes"
	"github.com/qrseal/qrseal-backend/internal/app"
	"github.com/qrseal/qrseal-backend/internal/brands"
	"github.com/qrseal/qrseal-backend/internal/orders"
	"github.com/qrseal/qrseal-backend/internal/products"
	"github.com/qrseal/qrseal-backend/internal/sequence"
	stripewebhook "github.com/qrseal/qrseal-backend/internal/webhooks/stripe"
	"github.com/qrseal/qrseal-backend/pkg/metrics"
)

const (
	stripeEventScope = "stripe-event"
	shutdownGrace    = 15 * time.Second
)

func main() {
	app.Main("api", run)
}

func run(ctx context.Context, rt *app.Runtime) error {
	cfg, logg, conn := rt.Config, rt.Logger, rt.DB.DB()

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

	billing, err := app.NewBilling(rt, redisClient, stripeClient)
	if err != nil {
		return err
	}

	brandResolver, err := brands.NewResolver(brands.NewRepository(conn))
	if err != nil {
		return fmt.Errorf("brand resolver: %w", err)
	}
	allocator, err := sequence.NewAllocator(sequence.NewRepository(conn), rt.DB)
	if err != nil {
		return fmt.Errorf("sequence allocator: %w", err)
	}
	productRepo := products.NewRepository(conn)
	issuer, err := products.NewIssuer(productRepo, allocator)
	if err != nil {
		return fmt.Errorf("qr issuer: %w", err)
	}
	verifier, err := products.NewService(productRepo, brandResolver, logg)
	if err != nil {
		return fmt.Errorf("verification service: %w", err)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repository:          orders.NewRepository(conn),
		Tx:                  rt.DB,
		Ledger:              billing.Ledger,
		Brands:              brandResolver,
		Issuer:              issuer,
		Dispatcher:          billing.Dispatcher,
		Logger:              logg,
		RefundOnReject:      cfg.Orders.RefundOnReject,
		LowBalanceThreshold: cfg.Credits.LowBalanceThreshold,
	})
	if err != nil {
		return fmt.Errorf("orders service: %w", err)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Payments: billing.Payments,
		Logger:   logg,
	})
	if err != nil {
		return fmt.Errorf("stripe webhook service: %w", err)
	}
	webhookGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Payments.WebhookEventTTL, stripeEventScope)
	if err != nil {
		return fmt.Errorf("stripe webhook guard: %w", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(
			cfg,
			logg,
			rt.DB,
			redisClient,
			prometheus.DefaultGatherer,
			ordersService,
			billing.Ledger,
			billing.Payments,
			verifier,
			stripeClient,
			webhookService,
			webhookGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	served := make(chan error, 1)
	go func() {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"addr":      server.Addr,
			"stripeEnv": stripeClient.Environment(),
		}), "api listening")
		served <- server.ListenAndServe()
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("drain http server: %w", err)
	}
	return nil
}
