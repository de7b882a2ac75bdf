package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
	AggregateCompany OutboxAggregateType = "company"
)

var aggregateTypes = newValueSet("aggregate type", AggregateOrder, AggregatePayment, AggregateCompany)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventPaymentCompleted   OutboxEventType = "payment_completed"
	EventPaymentFailed      OutboxEventType = "payment_failed"
	EventCreditsLow         OutboxEventType = "credits_low"
)

var outboxEventTypes = newValueSet("event type",
	EventOrderCreated,
	EventOrderStatusChanged,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventCreditsLow,
)

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }
