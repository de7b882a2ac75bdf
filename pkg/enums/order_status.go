package enums

// OrderStatus maps to the order_status enum in Postgres.
type OrderStatus string

const (
	OrderStatusPendingAuthorization OrderStatus = "pending_authorization"
	OrderStatusAuthorized           OrderStatus = "authorized"
	OrderStatusOrderProcessing      OrderStatus = "order_processing"
	OrderStatusDispatching          OrderStatus = "dispatching"
	OrderStatusDispatched           OrderStatus = "dispatched"
	OrderStatusReceived             OrderStatus = "received"
	OrderStatusRejected             OrderStatus = "rejected"
)

var orderStatuses = newValueSet("order status",
	OrderStatusPendingAuthorization,
	OrderStatusAuthorized,
	OrderStatusOrderProcessing,
	OrderStatusDispatching,
	OrderStatusDispatched,
	OrderStatusReceived,
	OrderStatusRejected,
)

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusReceived || s == OrderStatusRejected
}

func ParseOrderStatus(value string) (OrderStatus, error) { return orderStatuses.parse(value) }
