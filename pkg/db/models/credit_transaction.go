package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/pkg/enums"
)

// CreditTransaction is an immutable ledger entry. Amount is signed: negative for spends.
type CreditTransaction struct {
	ID           uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID    uuid.UUID                   `gorm:"column:company_id;type:uuid;not null"`
	Type         enums.CreditTransactionType `gorm:"column:type;type:credit_transaction_type;not null"`
	Amount       int                         `gorm:"column:amount;not null"`
	BalanceAfter int                         `gorm:"column:balance_after;not null"`
	OrderID      *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	PaymentID    *uuid.UUID                  `gorm:"column:payment_id;type:uuid"`
	PerformedBy  *uuid.UUID                  `gorm:"column:performed_by;type:uuid"`
	Note         *string                     `gorm:"column:note"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
