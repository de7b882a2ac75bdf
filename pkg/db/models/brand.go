package models

import (
	"time"

	"github.com/google/uuid"
)

// Brand belongs to exactly one company and owns a QR sequence.
type Brand struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CompanyID uuid.UUID `gorm:"column:company_id;type:uuid;not null"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// BrandSequence stores the last issued QR sequence number for a brand.
type BrandSequence struct {
	BrandID   uuid.UUID `gorm:"column:brand_id;type:uuid;primaryKey"`
	LastValue int64     `gorm:"column:last_value;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (BrandSequence) TableName() string { return "brand_sequences" }
