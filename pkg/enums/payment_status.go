package enums

// PaymentStatus tracks a credit purchase. Pending moves to exactly one of
// completed or failed.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

var paymentStatuses = newValueSet("payment status", PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

