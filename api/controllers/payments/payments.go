package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/api/controllers/callercontext"
	"github.com/qrseal/qrseal-backend/api/responses"
	"github.com/qrseal/qrseal-backend/api/validators"
	internalpayments "github.com/qrseal/qrseal-backend/internal/payments"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

const merchantOrderIDParam = "merchantOrderId"

// Service is the payment surface the HTTP layer needs.
type Service interface {
	Initiate(ctx context.Context, input internalpayments.InitiateInput) (*internalpayments.InitiateResult, error)
	Sync(ctx context.Context, merchantOrderID string, channel internalpayments.Channel) (*models.Payment, error)
	Get(ctx context.Context, merchantOrderID string, companyID *uuid.UUID) (*models.Payment, error)
}

// Initiate prices a plan purchase or top-up and opens a gateway checkout session.
func Initiate(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "payments unavailable"))
			return
		}
		caller, companyID, err := callercontext.ResolveCompany(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload initiateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentType, err := enums.ParsePaymentType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment type"))
			return
		}

		result, err := svc.Initiate(r.Context(), internalpayments.InitiateInput{
			CompanyID:   companyID,
			InitiatedBy: caller.UserID,
			Type:        paymentType,
			PlanID:      payload.PlanID,
			Quantity:    payload.Quantity,
			CouponCode:  payload.CouponCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, initiateResponse{
			PaymentID:       result.Payment.ID,
			MerchantOrderID: result.Payment.MerchantOrderID,
			RedirectURL:     result.Payment.RedirectURL,
			Breakdown:       result.Breakdown,
		})
	}
}

// Status is the manual poll channel: it looks the session up at the gateway when
// the payment is still pending and reconciles any terminal outcome.
func Status(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "payments unavailable"))
			return
		}
		caller, err := callercontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		merchantOrderID := strings.TrimSpace(chi.URLParam(r, merchantOrderIDParam))
		if merchantOrderID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "merchant order id is required"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithMerchantOrderID(ctx, merchantOrderID)
		}

		scope := caller.CompanyID
		if caller.Role == enums.ActorRoleAdmin {
			scope = nil
		}
		stored, err := svc.Get(ctx, merchantOrderID, scope)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		synced, err := svc.Sync(ctx, merchantOrderID, internalpayments.ChannelStatusPoll)
		if err != nil {
			if !pkgerrors.Is(err, pkgerrors.CodeGateway) {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "payment status lookup failed; returning stored state")
			}
			synced = stored
		}
		responses.WriteSuccess(w, toPaymentResponse(synced))
	}
}

// Callback receives the gateway redirect. It always answers 200; failures are logged.
func Callback(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantOrderID := callbackMerchantOrderID(r)
		if merchantOrderID == "" {
			if logg != nil {
				logg.Warn(ctx, "payment callback without merchant order id")
			}
			responses.WriteSuccess(w, callbackResponse{Received: false})
			return
		}
		if logg != nil {
			ctx = logg.WithMerchantOrderID(ctx, merchantOrderID)
		}
		if svc == nil {
			if logg != nil {
				logg.Error(ctx, "payment callback dropped", pkgerrors.New(pkgerrors.CodeDependency, "payments unavailable"))
			}
			responses.WriteSuccess(w, callbackResponse{MerchantOrderID: merchantOrderID, Received: false})
			return
		}

		payment, err := svc.Sync(ctx, merchantOrderID, internalpayments.ChannelCallback)
		if err != nil {
			if logg != nil {
				logg.Error(ctx, "payment callback reconcile failed", err)
			}
			responses.WriteSuccess(w, callbackResponse{MerchantOrderID: merchantOrderID, Received: true})
			return
		}
		responses.WriteSuccess(w, callbackResponse{
			MerchantOrderID: payment.MerchantOrderID,
			Status:          payment.Status,
			Received:        true,
		})
	}
}

func callbackMerchantOrderID(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get(merchantOrderIDParam)); v != "" {
		return v
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			return strings.TrimSpace(r.PostForm.Get(merchantOrderIDParam))
		}
	}
	return ""
}
