package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
)

var errTxRequired = errors.New("outbox: transaction required")

// Repository persists outbox rows. Writers always go through the caller's
// transaction so an event is only visible once its domain change commits.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish claims up to limit pending rows in creation order.
// Rows at or past maxAttempts are parked and skipped. Postgres locks the batch
// with SKIP LOCKED so several relays can drain the table together.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	q := tx.Model(&models.OutboxEvent{}).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var pending []models.OutboxEvent
	if err := q.Order("created_at, id").Limit(limit).Find(&pending).Error; err != nil {
		return nil, err
	}
	return pending, nil
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return patch(tx, id, map[string]any{
		"published_at": time.Now().UTC(),
		"last_error":   nil,
	})
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return patch(tx, id, map[string]any{
		"last_error":    errText(err),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminalTx parks a row by jumping its attempt count straight to the limit.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return patch(tx, id, map[string]any{
		"last_error":    errText(err),
		"attempt_count": terminalAttempts,
	})
}

// DeletePublishedBefore purges rows older than cutoff that were published or
// parked at parkedAttempts. A nil tx runs on the repository handle.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, parkedAttempts int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("published_at IS NOT NULL OR attempt_count >= ?", parkedAttempts).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func patch(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
