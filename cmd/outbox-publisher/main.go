package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qrseal/qrseal-backend/internal/app"
	"github.com/qrseal/qrseal-backend/pkg/metrics"
	"github.com/qrseal/qrseal-backend/pkg/outbox"
	"github.com/qrseal/qrseal-backend/pkg/outbox/registry"
	"github.com/qrseal/qrseal-backend/pkg/pubsub"
)

func main() {
	app.Main("outbox-publisher", run)
}

func run(ctx context.Context, rt *app.Runtime) error {
	cfg := rt.Config

	broker, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger)
	if err != nil {
		return fmt.Errorf("connect pubsub: %w", err)
	}
	rt.OnClose("pubsub", broker.Close)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}

	relay, err := NewRelay(RelayParams{
		Outbox: cfg.Outbox,
		Logger: rt.Logger,
		DB:     rt.DB,
		Broker: broker,
		Rows:   outbox.NewRepository(rt.DB.DB()),
		Events: events,
		Sender: pubsubSender{topics: broker},
	})
	if err != nil {
		return fmt.Errorf("outbox relay: %w", err)
	}
	return relay.Run(ctx)
}
