package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	"github.com/qrseal/qrseal-backend/pkg/pagination"
)

type createOrderRequest struct {
	BrandID     *uuid.UUID `json:"brandId"`
	ProductName string     `json:"productName" validate:"required,notblank,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Quantity    int        `json:"quantity" validate:"required,min=1,max=1000000"`
}

type dispatchRequest struct {
	TrackingNumber string  `json:"trackingNumber" validate:"required,notblank,max=120"`
	CourierName    string  `json:"courierName" validate:"required,notblank,max=120"`
	Notes          *string `json:"notes" validate:"omitempty,max=2000"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=2000"`
}

type historyEntryResponse struct {
	Status    enums.OrderStatus `json:"status"`
	ActorID   uuid.UUID         `json:"actorId"`
	ActorRole enums.ActorRole   `json:"actorRole"`
	Comment   *string           `json:"comment,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type orderResponse struct {
	ID               uuid.UUID              `json:"id"`
	OrderNumber      string                 `json:"orderNumber"`
	CompanyID        uuid.UUID              `json:"companyId"`
	BrandID          uuid.UUID              `json:"brandId"`
	ProductName      string                 `json:"productName"`
	Description      *string                `json:"description,omitempty"`
	Quantity         int                    `json:"quantity"`
	Status           enums.OrderStatus      `json:"status"`
	QRCodesGenerated bool                   `json:"qrCodesGenerated"`
	ActivatedCount   int                    `json:"activatedCount"`
	TrackingNumber   *string                `json:"trackingNumber,omitempty"`
	CourierName      *string                `json:"courierName,omitempty"`
	DispatchNotes    *string                `json:"dispatchNotes,omitempty"`
	DispatchedAt     *time.Time             `json:"dispatchedAt,omitempty"`
	CreatedBy        uuid.UUID              `json:"createdBy"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
	History          []historyEntryResponse `json:"history,omitempty"`
}

type orderListResponse struct {
	Items      []orderResponse `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		CompanyID:        order.CompanyID,
		BrandID:          order.BrandID,
		ProductName:      order.ProductName,
		Description:      order.Description,
		Quantity:         order.Quantity,
		Status:           order.Status,
		QRCodesGenerated: order.QRCodesGenerated,
		ActivatedCount:   order.ActivatedCount,
		TrackingNumber:   order.TrackingNumber,
		CourierName:      order.CourierName,
		DispatchNotes:    order.DispatchNotes,
		DispatchedAt:     order.DispatchedAt,
		CreatedBy:        order.CreatedBy,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for _, entry := range order.History {
		resp.History = append(resp.History, historyEntryResponse{
			Status:    entry.Status,
			ActorID:   entry.ActorID,
			ActorRole: entry.ActorRole,
			Comment:   entry.Comment,
			Timestamp: entry.CreatedAt,
		})
	}
	return resp
}

func toOrderListResponse(page *pagination.Page[models.Order]) orderListResponse {
	resp := orderListResponse{Items: make([]orderResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		resp.Items = append(resp.Items, toOrderResponse(&page.Items[i]))
	}
	return resp
}
