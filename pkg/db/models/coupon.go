package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qrseal/qrseal-backend/pkg/enums"
)

type Coupon struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code         string                   `gorm:"column:code;not null;uniqueIndex"`
	DiscountType enums.CouponDiscountType `gorm:"column:discount_type;type:coupon_discount_type;not null"`
	Value        decimal.Decimal          `gorm:"column:value;type:numeric(12,2);not null"`
	Active       bool                     `gorm:"column:active;not null;default:true"`
	ExpiresAt    *time.Time               `gorm:"column:expires_at"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime"`
}
