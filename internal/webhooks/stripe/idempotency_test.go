package stripewebhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	keys   map[string]time.Duration
	setErr error
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) { return "", nil }

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func TestEventGuardClaimAndRelease(t *testing.T) {
	store := &memoryStore{keys: map[string]time.Duration{}}
	guard, err := NewEventGuard(store, time.Hour, "stripe-webhook")
	require.NoError(t, err)
	ctx := context.Background()

	first, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)
	assert.Equal(t, time.Hour, store.keys["stripe-webhook:evt_1"])

	again, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, guard.Release(ctx, "evt_1"))
	after, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, after)

	_, err = guard.Claim(ctx, "")
	assert.ErrorIs(t, err, errNoEventID)
	assert.ErrorIs(t, guard.Release(ctx, ""), errNoEventID)
}

func TestEventGuardStoreFailure(t *testing.T) {
	down := errors.New("redis down")
	guard, err := NewEventGuard(&memoryStore{keys: map[string]time.Duration{}, setErr: down}, time.Minute, "s")
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), "evt_9")
	assert.ErrorIs(t, err, down)
}

func TestNewEventGuardValidates(t *testing.T) {
	store := &memoryStore{keys: map[string]time.Duration{}}
	_, err := NewEventGuard(nil, time.Minute, "s")
	assert.Error(t, err)
	_, err = NewEventGuard(store, -time.Second, "s")
	assert.Error(t, err)
	_, err = NewEventGuard(store, time.Minute, "")
	assert.Error(t, err)
}
