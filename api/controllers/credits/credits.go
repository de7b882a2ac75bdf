package credits

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/api/controllers/callercontext"
	"github.com/qrseal/qrseal-backend/api/responses"
	"github.com/qrseal/qrseal-backend/api/validators"
	"github.com/qrseal/qrseal-backend/internal/ledger"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	"github.com/qrseal/qrseal-backend/pkg/pagination"
)

// Ledger is the credit surface the HTTP layer needs.
type Ledger interface {
	Grant(ctx context.Context, input ledger.GrantInput) (*models.CreditTransaction, error)
	Balance(ctx context.Context, companyID uuid.UUID) (int, error)
	ListTransactions(ctx context.Context, companyID uuid.UUID, params pagination.Params) (*ledger.TransactionList, error)
	VerifyBalance(ctx context.Context, companyID uuid.UUID) (*ledger.Verification, error)
}

type balanceResponse struct {
	CompanyID uuid.UUID `json:"companyId"`
	Balance   int       `json:"balance"`
}

type transactionResponse struct {
	ID           uuid.UUID                   `json:"id"`
	Type         enums.CreditTransactionType `json:"type"`
	Amount       int                         `json:"amount"`
	BalanceAfter int                         `json:"balanceAfter"`
	OrderID      *uuid.UUID                  `json:"orderId,omitempty"`
	PaymentID    *uuid.UUID                  `json:"paymentId,omitempty"`
	PerformedBy  *uuid.UUID                  `json:"performedBy,omitempty"`
	Note         *string                     `json:"note,omitempty"`
	CreatedAt    time.Time                   `json:"createdAt"`
}

type transactionListResponse struct {
	Items      []transactionResponse `json:"items"`
	NextCursor string                `json:"nextCursor,omitempty"`
}

type grantRequest struct {
	Amount int     `json:"amount" validate:"required,min=1"`
	Note   *string `json:"note" validate:"omitempty,max=500"`
}

func Balance(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable"))
			return
		}
		_, companyID, err := callercontext.ResolveCompany(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.Balance(r.Context(), companyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{CompanyID: companyID, Balance: balance})
	}
}

// Transactions pages through the caller's ledger, newest first.
func Transactions(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable"))
			return
		}
		_, companyID, err := callercontext.ResolveCompany(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListTransactions(r.Context(), companyID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := transactionListResponse{Items: make([]transactionResponse, 0, len(page.Items)), NextCursor: page.NextCursor}
		for i := range page.Items {
			resp.Items = append(resp.Items, toTransactionResponse(&page.Items[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdminGrant credits a company outside the payment flow.
func AdminGrant(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable"))
			return
		}
		caller, err := callercontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		companyID, err := callercontext.UUIDParam(r, "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload grantRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Grant(r.Context(), ledger.GrantInput{
			CompanyID:   companyID,
			Amount:      payload.Amount,
			Type:        enums.CreditTransactionAdminGrant,
			Note:        payload.Note,
			PerformedBy: &caller.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toTransactionResponse(entry))
	}
}

// AdminVerify replays the ledger for a company and compares it with the stored balance.
func AdminVerify(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable"))
			return
		}
		companyID, err := callercontext.UUIDParam(r, "companyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		verification, err := svc.VerifyBalance(r.Context(), companyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !verification.Consistent && logg != nil {
			logg.Warn(logg.WithFields(r.Context(), map[string]any{
				"company_id":     companyID.String(),
				"stored_balance": verification.StoredBalance,
				"ledger_balance": verification.LedgerBalance,
			}), "credit balance drift detected")
		}
		responses.WriteSuccess(w, verification)
	}
}

func toTransactionResponse(entry *models.CreditTransaction) transactionResponse {
	return transactionResponse{
		ID:           entry.ID,
		Type:         entry.Type,
		Amount:       entry.Amount,
		BalanceAfter: entry.BalanceAfter,
		OrderID:      entry.OrderID,
		PaymentID:    entry.PaymentID,
		PerformedBy:  entry.PerformedBy,
		Note:         entry.Note,
		CreatedAt:    entry.CreatedAt,
	}
}
