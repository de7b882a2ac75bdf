package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qrseal/qrseal-backend/pkg/enums"
)

// Payment tracks a credit purchase from initiation through gateway settlement.
type Payment struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID            uuid.UUID           `gorm:"column:company_id;type:uuid;not null"`
	Type                 enums.PaymentType   `gorm:"column:type;type:payment_type;not null"`
	PlanID               *uuid.UUID          `gorm:"column:plan_id;type:uuid"`
	Credits              int                 `gorm:"column:credits;not null"`
	MerchantOrderID      string              `gorm:"column:merchant_order_id;not null;uniqueIndex"`
	BaseAmount           decimal.Decimal     `gorm:"column:base_amount;type:numeric(12,2);not null"`
	CouponCode           *string             `gorm:"column:coupon_code"`
	CouponDiscount       decimal.Decimal     `gorm:"column:coupon_discount;type:numeric(12,2);not null"`
	GSTAmount            decimal.Decimal     `gorm:"column:gst_amount;type:numeric(12,2);not null"`
	AdditionalCharges    decimal.Decimal     `gorm:"column:additional_charges;type:numeric(12,2);not null"`
	FinalAmount          decimal.Decimal     `gorm:"column:final_amount;type:numeric(12,2);not null"`
	ChargedAmount        decimal.Decimal     `gorm:"column:charged_amount;type:numeric(12,2);not null"`
	Currency             string              `gorm:"column:currency;not null"`
	Status               enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	GatewaySessionID     *string             `gorm:"column:gateway_session_id"`
	GatewayTransactionID *string             `gorm:"column:gateway_transaction_id"`
	RedirectURL          *string             `gorm:"column:redirect_url"`
	CreditTransactionID  *uuid.UUID          `gorm:"column:credit_transaction_id;type:uuid"`
	FailureReason        *string             `gorm:"column:failure_reason"`
	InitiatedBy          uuid.UUID           `gorm:"column:initiated_by;type:uuid;not null"`
	CompletedAt          *time.Time          `gorm:"column:completed_at"`
	FailedAt             *time.Time          `gorm:"column:failed_at"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Settled reports whether the payment has reached a final state with nothing
// left to reconcile. A completed payment still waiting on its ledger grant is
// not settled.
func (p *Payment) Settled() bool {
	switch p.Status {
	case enums.PaymentStatusFailed:
		return true
	case enums.PaymentStatusCompleted:
		return p.CreditTransactionID != nil
	default:
		return false
	}
}
