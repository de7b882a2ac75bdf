package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is one physical QR unit minted for an order.
type Product struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QRCode      string     `gorm:"column:qr_code;not null;uniqueIndex"`
	Sequence    int64      `gorm:"column:sequence;not null"`
	BrandID     uuid.UUID  `gorm:"column:brand_id;type:uuid;not null"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	IsActive    bool       `gorm:"column:is_active;not null;default:false"`
	ScanCount   int        `gorm:"column:scan_count;not null;default:0"`
	ActivatedAt *time.Time `gorm:"column:activated_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
