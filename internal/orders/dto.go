package orders

import (
	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	"github.com/qrseal/qrseal-backend/pkg/pagination"
)

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID    uuid.UUID
	Role      enums.ActorRole
	CompanyID *uuid.UUID
}

// IsAdmin reports whether the actor is a platform admin.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.ActorRoleAdmin
}

// CreateInput carries a creator's order request.
type CreateInput struct {
	BrandID     *uuid.UUID
	ProductName string
	Description *string
	Quantity    int
	Actor       Actor
}

// DispatchInput carries shipment metadata recorded on dispatch.
type DispatchInput struct {
	TrackingNumber string
	CourierName    string
	Notes          *string
}

// ListFilters narrows the order list.
type ListFilters struct {
	Status    *enums.OrderStatus
	BrandID   *uuid.UUID
	CompanyID *uuid.UUID
}

// OrderList is one page of orders, newest first.
type OrderList = pagination.Page[models.Order]

// StateConflict is attached as details to STATE_CONFLICT errors.
type StateConflict struct {
	Operation     string            `json:"operation"`
	CurrentStatus enums.OrderStatus `json:"currentStatus"`
	Allowed       []string          `json:"allowedFrom,omitempty"`
}
