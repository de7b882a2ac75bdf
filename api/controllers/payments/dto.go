package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalpayments "github.com/qrseal/qrseal-backend/internal/payments"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
)

type initiateRequest struct {
	Type       string     `json:"type" validate:"required,oneof=plan topup"`
	PlanID     *uuid.UUID `json:"planId" validate:"required_if=Type plan"`
	Quantity   int        `json:"quantity" validate:"omitempty,min=1"`
	CouponCode *string    `json:"couponCode" validate:"omitempty,max=64"`
}

type initiateResponse struct {
	PaymentID       uuid.UUID                  `json:"paymentId"`
	MerchantOrderID string                     `json:"merchantOrderId"`
	RedirectURL     *string                    `json:"redirectUrl"`
	Breakdown       internalpayments.Breakdown `json:"breakdown"`
}

type paymentResponse struct {
	ID                  uuid.UUID           `json:"id"`
	MerchantOrderID     string              `json:"merchantOrderId"`
	Type                enums.PaymentType   `json:"type"`
	Credits             int                 `json:"credits"`
	FinalAmount         decimal.Decimal     `json:"finalAmount"`
	ChargedAmount       decimal.Decimal     `json:"chargedAmount"`
	Currency            string              `json:"currency"`
	Status              enums.PaymentStatus `json:"status"`
	RedirectURL         *string             `json:"redirectUrl,omitempty"`
	CreditTransactionID *uuid.UUID          `json:"creditTransactionId,omitempty"`
	FailureReason       *string             `json:"failureReason,omitempty"`
	CompletedAt         *time.Time          `json:"completedAt,omitempty"`
	FailedAt            *time.Time          `json:"failedAt,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
}

type callbackResponse struct {
	MerchantOrderID string              `json:"merchantOrderId,omitempty"`
	Status          enums.PaymentStatus `json:"status,omitempty"`
	Received        bool                `json:"received"`
}

func toPaymentResponse(p *models.Payment) paymentResponse {
	return paymentResponse{
		ID:                  p.ID,
		MerchantOrderID:     p.MerchantOrderID,
		Type:                p.Type,
		Credits:             p.Credits,
		FinalAmount:         p.FinalAmount,
		ChargedAmount:       p.ChargedAmount,
		Currency:            p.Currency,
		Status:              p.Status,
		RedirectURL:         p.RedirectURL,
		CreditTransactionID: p.CreditTransactionID,
		FailureReason:       p.FailureReason,
		CompletedAt:         p.CompletedAt,
		FailedAt:            p.FailedAt,
		CreatedAt:           p.CreatedAt,
	}
}
