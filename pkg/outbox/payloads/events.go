package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when a creator submits an order for authorization.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CompanyID   uuid.UUID `json:"company_id"`
	BrandID     uuid.UUID `json:"brand_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	CreatedBy   uuid.UUID `json:"created_by"`
}

// OrderStatusChangedEvent is emitted after every committed transition.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	CompanyID      uuid.UUID         `json:"company_id"`
	BrandID        uuid.UUID         `json:"brand_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Status         enums.OrderStatus `json:"status"`
	ActorRole      enums.ActorRole   `json:"actor_role"`
	Comment        *string           `json:"comment,omitempty"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
	CourierName    *string           `json:"courier_name,omitempty"`
}

// PaymentCompletedEvent is emitted once credits from a payment have been granted.
type PaymentCompletedEvent struct {
	PaymentID           uuid.UUID         `json:"payment_id"`
	MerchantOrderID     string            `json:"merchant_order_id"`
	CompanyID           uuid.UUID         `json:"company_id"`
	Type                enums.PaymentType `json:"type"`
	Credits             int               `json:"credits"`
	FinalAmount         string            `json:"final_amount"`
	ChargedAmount       string            `json:"charged_amount"`
	Currency            string            `json:"currency"`
	CreditTransactionID uuid.UUID         `json:"credit_transaction_id"`
	BalanceAfter        int               `json:"balance_after"`
	CompletedAt         time.Time         `json:"completed_at"`
}

// PaymentFailedEvent is emitted when the gateway reports a terminal failure.
type PaymentFailedEvent struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	MerchantOrderID string    `json:"merchant_order_id"`
	CompanyID       uuid.UUID `json:"company_id"`
	Reason          string    `json:"reason,omitempty"`
}

// CreditsLowEvent is emitted when a spend leaves the balance under the configured threshold.
type CreditsLowEvent struct {
	CompanyID uuid.UUID `json:"company_id"`
	Balance   int       `json:"balance"`
	Threshold int       `json:"threshold"`
}
