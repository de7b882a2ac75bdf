package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/pkg/enums"
)

// Order is a request for a batch of QR codes for one brand.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber      string            `gorm:"column:order_number;not null;uniqueIndex"`
	CompanyID        uuid.UUID         `gorm:"column:company_id;type:uuid;not null"`
	BrandID          uuid.UUID         `gorm:"column:brand_id;type:uuid;not null"`
	ProductName      string            `gorm:"column:product_name;not null"`
	Description      *string           `gorm:"column:description"`
	Quantity         int               `gorm:"column:quantity;not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending_authorization'"`
	QRCodesGenerated bool              `gorm:"column:qr_codes_generated;not null;default:false"`
	ActivatedCount   int               `gorm:"column:activated_count;not null;default:0"`
	TrackingNumber   *string           `gorm:"column:tracking_number"`
	CourierName      *string           `gorm:"column:courier_name"`
	DispatchNotes    *string           `gorm:"column:dispatch_notes"`
	DispatchedAt     *time.Time        `gorm:"column:dispatched_at"`
	CreatedBy        uuid.UUID         `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	History []OrderHistoryEntry `gorm:"foreignKey:OrderID;references:ID"`
}

// OrderHistoryEntry is an append-only record of one status transition.
type OrderHistoryEntry struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	Position  int               `gorm:"column:position;not null"`
	Status    enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	ActorID   uuid.UUID         `gorm:"column:actor_id;type:uuid;not null"`
	ActorRole enums.ActorRole   `gorm:"column:actor_role;not null"`
	Comment   *string           `gorm:"column:comment"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderHistoryEntry) TableName() string { return "order_history" }
