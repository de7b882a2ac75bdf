package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qrseal/qrseal-backend/pkg/redis"
)

var errNoEventID = errors.New("stripe event id is empty")

// EventGuard claims Stripe event ids in Redis so a redelivered event is only
// processed once within the retention window.
type EventGuard struct {
	store  redis.IdempotencyStore
	retain time.Duration
	scope  string
}

func NewEventGuard(store redis.IdempotencyStore, retain time.Duration, scope string) (*EventGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("event guard: store required")
	case retain < 0:
		return nil, fmt.Errorf("event guard: negative retention %s", retain)
	case scope == "":
		return nil, errors.New("event guard: scope required")
	}
	return &EventGuard{store: store, retain: retain, scope: scope}, nil
}

// Claim reports true when this call is the first to see eventID.
func (g *EventGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errNoEventID
	}
	won, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), "1", g.retain)
	if err != nil {
		return false, fmt.Errorf("claim stripe event %s: %w", eventID, err)
	}
	return won, nil
}

// Release forgets eventID so the next delivery is processed again.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errNoEventID
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
