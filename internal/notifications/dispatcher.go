package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/enums"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	"github.com/qrseal/qrseal-backend/pkg/outbox"
	"github.com/qrseal/qrseal-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Event is a notification raised after a business transaction has committed.
type Event struct {
	Type          enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *outbox.ActorRef
	Data          any
}

// Dispatcher delivers notifications on a best-effort basis. Dispatch never fails the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event)
}

type outboxDispatcher struct {
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
}

// NewOutboxDispatcher queues notifications in the outbox table, each in its own transaction.
func NewOutboxDispatcher(tx txRunner, emitter outboxEmitter, logg *logger.Logger) (Dispatcher, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &outboxDispatcher{tx: tx, outbox: emitter, logg: logg}, nil
}

func (d *outboxDispatcher) Dispatch(ctx context.Context, event Event) {
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     event.Type,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Actor:         event.Actor,
			Data:          event.Data,
			Version:       1,
		})
	})
	if err != nil && d.logg != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"event_type":   event.Type,
			"aggregate_id": event.AggregateID.String(),
			"error":        err.Error(),
		})
		d.logg.Warn(logCtx, "notification dispatch failed")
	}
}

// CreditsLow builds the low-balance event when balance dropped under threshold.
func CreditsLow(companyID uuid.UUID, balance, threshold int) (Event, bool) {
	if threshold <= 0 || balance >= threshold {
		return Event{}, false
	}
	return Event{
		Type:          enums.EventCreditsLow,
		AggregateType: enums.AggregateCompany,
		AggregateID:   companyID,
		Data: payloads.CreditsLowEvent{
			CompanyID: companyID,
			Balance:   balance,
			Threshold: threshold,
		},
	}, true
}
