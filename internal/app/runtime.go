// Package app holds the process bootstrap shared by the binaries under cmd/.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/db"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	"github.com/qrseal/qrseal-backend/pkg/migrate"
	"github.com/qrseal/qrseal-backend/pkg/redis"
	"github.com/qrseal/qrseal-backend/pkg/stripe"
)

// Runtime is what every service process starts with: config, logger and a
// database handle. Resources opened through it are released by Close in
// reverse order.
type Runtime struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Main boots a Runtime for kind, runs fn until SIGINT/SIGTERM and exits
// non-zero when either fails.
func Main(kind string, fn func(ctx context.Context, rt *Runtime) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := Boot(ctx, kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", kind, err)
		os.Exit(1)
	}

	ctx = rt.Logger.WithFields(ctx, map[string]any{
		"env":         rt.Config.App.Env,
		"serviceKind": kind,
	})
	rt.Logger.Info(ctx, "starting")

	err = fn(ctx, rt)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if cerr := rt.Close(); cerr != nil {
		rt.Logger.Error(ctx, "shutdown", cerr)
	}
	if err != nil {
		rt.Logger.Error(ctx, "stopped unexpectedly", err)
		os.Exit(1)
	}
	rt.Logger.Info(ctx, "stopped")
}

// Boot loads .env (when present) and config, then opens the database and
// applies dev migrations when enabled.
func Boot(ctx context.Context, kind string) (*Runtime, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind

	rt := &Runtime{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Console:     cfg.App.LogFormat == "console",
		}),
	}

	rt.DB, err = db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt.OnClose("database", rt.DB.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return rt, nil
}

// OnClose registers fn to run during Close.
func (rt *Runtime) OnClose(name string, fn func() error) {
	rt.closers = append(rt.closers, closer{name: name, fn: fn})
}

// Close releases resources newest first and joins their errors.
func (rt *Runtime) Close() error {
	var err error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if cerr := c.fn(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", c.name, cerr))
		}
	}
	rt.closers = nil
	return err
}

func (rt *Runtime) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	rt.OnClose("redis", client.Close)
	return client, nil
}

func (rt *Runtime) Stripe(ctx context.Context) (*stripe.Client, error) {
	client, err := stripe.NewClient(ctx, rt.Config.Stripe, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("configure stripe: %w", err)
	}
	return client, nil
}
