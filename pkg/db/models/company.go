package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is a tenant. CreditBalance is written only through the credit ledger.
type Company struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string    `gorm:"column:name;not null"`
	CreditBalance int       `gorm:"column:credit_balance;not null;default:0"`
	IsTestAccount bool      `gorm:"column:is_test_account;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
