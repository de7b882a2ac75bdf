package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/db/dbtest"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	"github.com/qrseal/qrseal-backend/pkg/outbox"
)

type fakeOutboxRetentionRepo struct {
	lastCutoff time.Time
	parked     int
	called     int
	err        error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, parkedAttempts int) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	f.parked = parkedAttempts
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestOutboxRetentionJobUsesDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, passthroughTxRunner{})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, repo.lastCutoff.Equal(now.Add(-outboxRetention)))
	assert.Equal(t, outboxParkedAttempts, repo.parked)
	assert.Equal(t, 1, repo.called)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{err: errors.New("boom")}, passthroughTxRunner{})
	assert.Error(t, job.Run(context.Background()))
}

func TestOutboxRetentionJobAgainstSQLite(t *testing.T) {
	client, conn := dbtest.Client(t)
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	published := old.Add(time.Minute)

	rows := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: old, PublishedAt: &published},
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: old, AttemptCount: 10},
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: old, AttemptCount: 2},
		{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &published},
	}
	require.NoError(t, conn.Create(&rows).Error)

	job := newOutboxRetentionJob(t, outbox.NewRepository(conn), client)
	require.NoError(t, job.Run(context.Background()))

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("attempt_count").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, rows[3].ID, remaining[0].ID)
	assert.Equal(t, rows[2].ID, remaining[1].ID)
}

func newOutboxRetentionJob(t *testing.T, repo outboxRetentionRepo, db txRunner) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     quietLogger(),
		DB:         db,
		Repository: repo,
	})
	require.NoError(t, err)
	job, ok := jobIface.(*outboxRetentionJob)
	require.True(t, ok, "expected outboxRetentionJob, got %T", jobIface)
	return job
}
