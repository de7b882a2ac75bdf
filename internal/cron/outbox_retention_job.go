package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/logger"
)

const (
	outboxRetention      = 30 * 24 * time.Hour
	outboxParkedAttempts = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, parkedAttempts int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// Retention defaults to 30 days.
	Retention time.Duration
	// ParkedAttempts marks rows the relay gave up on; defaults to 10.
	ParkedAttempts int
}

// NewOutboxRetentionJob purges outbox rows that were delivered, or parked
// after exhausting their attempts, once they are older than Retention.
// Pending rows are never touched.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("outbox retention: logger required")
	case p.DB == nil:
		return nil, errors.New("outbox retention: tx runner required")
	case p.Repository == nil:
		return nil, errors.New("outbox retention: repository required")
	}
	job := &outboxRetentionJob{
		logg:      p.Logger,
		db:        p.DB,
		repo:      p.Repository,
		retention: p.Retention,
		parked:    p.ParkedAttempts,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = outboxRetention
	}
	if job.parked <= 0 {
		job.parked = outboxParkedAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      outboxRetentionRepo
	retention time.Duration
	parked    int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var purged int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		purged, err = j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.parked)
		return err
	}); err != nil {
		return fmt.Errorf("purge outbox rows before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "purged": purged})
	if purged == 0 {
		j.logg.Debug(logCtx, "outbox retention found nothing to purge")
		return nil
	}
	j.logg.Info(logCtx, "outbox rows purged")
	return nil
}
