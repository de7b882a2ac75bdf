package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	"github.com/qrseal/qrseal-backend/pkg/metrics"
	"github.com/qrseal/qrseal-backend/pkg/outbox/registry"
)

const (
	fallbackBatch    = 50
	fallbackPoll     = 500 * time.Millisecond
	fallbackAttempts = 10
	sendTimeout      = 15 * time.Second
	pauseCeiling     = 10 * time.Second
	pauseJitter      = 250 * time.Millisecond
)

// verdict is what happened to one outbox row during a drain.
type verdict int

const (
	delivered verdict = iota
	retryLater
	parked
)

func (v verdict) outcome() string {
	switch v {
	case delivered:
		return metrics.OutcomeSuccess
	case retryLater:
		return metrics.OutcomeRetry
	default:
		return metrics.OutcomeTerminal
	}
}

type txPinger interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type rowStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sender hands one message to the broker and waits for the server ack.
type sender interface {
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type RelayParams struct {
	Outbox config.OutboxConfig
	Logger *logger.Logger
	DB     txPinger
	Broker interface{ Ping(context.Context) error }
	Rows   rowStore
	Events eventResolver
	Sender sender
}

// Relay moves committed notification rows from outbox_events onto the
// notification topic. Rows are claimed with SKIP LOCKED so replicas can share the table.
type Relay struct {
	logg     *logger.Logger
	db       txPinger
	broker   interface{ Ping(context.Context) error }
	rows     rowStore
	events   eventResolver
	sender   sender
	batch    int
	attempts int
	poll     time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil:
		return nil, errors.New("broker client is required")
	case p.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case p.Events == nil:
		return nil, errors.New("event registry is required")
	case p.Sender == nil:
		return nil, errors.New("sender is required")
	}

	r := &Relay{
		logg:     p.Logger,
		db:       p.DB,
		broker:   p.Broker,
		rows:     p.Rows,
		events:   p.Events,
		sender:   p.Sender,
		batch:    p.Outbox.BatchSize,
		attempts: p.Outbox.MaxAttempts,
		poll:     time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if r.batch <= 0 {
		r.batch = fallbackBatch
	}
	if r.attempts <= 0 {
		r.attempts = fallbackAttempts
	}
	if r.poll <= 0 {
		r.poll = fallbackPoll
	}
	return r, nil
}

// Run drains until ctx is cancelled. A full batch is followed immediately by the
// next one; an empty or failed drain waits before polling again.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.broker.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		n, err := r.drain(ctx)
		switch {
		case err != nil:
			failures++
			r.logg.Error(r.logg.WithField(ctx, "consecutive_failures", failures), "outbox drain failed", err)
		case n > 0:
			failures = 0
			continue
		default:
			failures = 0
		}

		if err := wait(ctx, pause(r.poll, failures)); err != nil {
			return err
		}
	}
}

// drain claims one batch and settles every row inside the claiming transaction.
func (r *Relay) drain(ctx context.Context) (int, error) {
	count := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.FetchUnpublishedForPublish(tx, r.batch, r.attempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		count = len(rows)
		for _, row := range rows {
			v, cause := r.deliver(ctx, row)
			if err := r.settle(ctx, tx, row, v, cause); err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) (verdict, error) {
	resolved, err := r.events.Resolve(row)
	if err != nil {
		return parked, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	err = r.sender.Send(sendCtx, resolved.Descriptor.Topic, message(row, resolved))
	if err == nil {
		return delivered, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return parked, err
	}
	if row.LastAttempt(r.attempts) {
		return parked, fmt.Errorf("gave up after %d attempts: %w", row.NextAttempt(), err)
	}
	return retryLater, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, v verdict, cause error) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"attempt":        row.NextAttempt(),
	})

	var err error
	switch v {
	case delivered:
		err = r.rows.MarkPublishedTx(tx, row.ID)
		r.logg.Info(logCtx, "notification relayed")
	case retryLater:
		err = r.rows.MarkFailedTx(tx, row.ID, cause)
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "notification relay failed, will retry")
	case parked:
		err = r.rows.MarkTerminalTx(tx, row.ID, cause, r.attempts)
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "notification parked")
	}
	if err != nil {
		return fmt.Errorf("settle outbox row %s: %w", row.ID, err)
	}
	metrics.ObserveOutboxPublish(string(row.EventType), v.outcome())
	return nil
}

func message(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if actor := resolved.Envelope.Actor; actor != nil && actor.CompanyID != nil {
		attrs["company_id"] = actor.CompanyID.String()
	}
	return &gcppubsub.Message{Data: row.Payload, Attributes: attrs}
}

// pause doubles the poll interval per consecutive failure, capped, plus jitter.
func pause(poll time.Duration, failures int) time.Duration {
	d := poll
	for i := 0; i < failures && d < pauseCeiling; i++ {
		d *= 2
	}
	if d > pauseCeiling {
		d = pauseCeiling
	}
	return d + rand.N(pauseJitter)
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// pubsubSender publishes through the shared client's cached publishers.
type pubsubSender struct {
	topics publisherSource
}

func (s pubsubSender) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.topics.Publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}
	_, err := pub.Publish(ctx, msg).Get(ctx)
	return err
}
