package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/pkg/enums"
)

// OutboxEvent is a queued notification written in the same transaction as the
// change it describes. The relay sets PublishedAt once the broker accepts it.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	// Payload holds the JSON envelope (version, event id, actor, data).
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount int             `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string         `gorm:"column:last_error"`
	PublishedAt  *time.Time      `gorm:"column:published_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// NextAttempt is the 1-based number of the delivery attempt about to run.
func (e OutboxEvent) NextAttempt() int {
	return e.AttemptCount + 1
}

// LastAttempt reports whether the next delivery is the final one allowed.
func (e OutboxEvent) LastAttempt(maxAttempts int) bool {
	return e.NextAttempt() >= maxAttempts
}
