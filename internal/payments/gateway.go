package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Outcome is the gateway's view of a checkout.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePending Outcome = "pending"
)

// Channel names the path a gateway outcome arrived on.
type Channel string

const (
	ChannelWebhook    Channel = "webhook"
	ChannelCallback   Channel = "callback"
	ChannelStatusPoll Channel = "status_poll"
	ChannelScheduled  Channel = "scheduled"
)

// SessionRequest asks the gateway to open a hosted checkout.
type SessionRequest struct {
	MerchantOrderID string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	Metadata        map[string]string
}

// Session is an opened hosted checkout.
type Session struct {
	ID          string
	RedirectURL string
}

// SessionStatus is the terminal or open state of a session at the gateway.
type SessionStatus struct {
	SessionID     string
	Outcome       Outcome
	TransactionID string
	Reason        string
}

// Gateway is the external payment provider.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	SessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
}

// RejectedError reports that the gateway definitively refused the request.
// Transport failures and timeouts are never wrapped in it.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return "gateway rejected request: " + e.Err.Error()
	}
	return "gateway rejected request: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return e.Err }

// IsRejected reports whether err is a definitive gateway rejection.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
