package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/api/controllers/callercontext"
	"github.com/qrseal/qrseal-backend/api/responses"
	"github.com/qrseal/qrseal-backend/api/validators"
	internalorders "github.com/qrseal/qrseal-backend/internal/orders"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	"github.com/qrseal/qrseal-backend/pkg/pagination"
)

const maxProductNameLen = 200

// endpoint does the work of one route once the caller is known. The returned
// value is written as the data envelope.
type endpoint func(r *http.Request, actor internalorders.Actor) (any, error)

// transition is a status change that needs nothing beyond the order id.
type transition func(svc internalorders.Service, ctx context.Context, orderID uuid.UUID, actor internalorders.Actor) (*models.Order, error)

func handle(svc internalorders.Service, logg *logger.Logger, status int, fn endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "orders unavailable"))
			return
		}
		caller, err := callercontext.Resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := fn(r, internalorders.Actor{UserID: caller.UserID, Role: caller.Role, CompanyID: caller.CompanyID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, out)
	}
}

// orderScoped resolves {orderId} and tags the request context with it before
// running fn.
func orderScoped(logg *logger.Logger, fn func(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor, r *http.Request) (*models.Order, error)) endpoint {
	return func(r *http.Request, actor internalorders.Actor) (any, error) {
		orderID, err := callercontext.UUIDParam(r, "orderId")
		if err != nil {
			return nil, err
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := fn(ctx, orderID, actor, r)
		if err != nil {
			return nil, err
		}
		return toOrderResponse(order), nil
	}
}

func simple(svc internalorders.Service, logg *logger.Logger, step transition) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, orderScoped(logg,
		func(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor, _ *http.Request) (*models.Order, error) {
			return step(svc, ctx, orderID, actor)
		}))
}

// Create places a new order in pending_authorization.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusCreated, func(r *http.Request, actor internalorders.Actor) (any, error) {
		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		order, err := svc.Create(r.Context(), internalorders.CreateInput{
			BrandID:     body.BrandID,
			ProductName: validators.SanitizeString(body.ProductName, maxProductNameLen),
			Description: body.Description,
			Quantity:    body.Quantity,
			Actor:       actor,
		})
		if err != nil {
			return nil, err
		}
		return toOrderResponse(order), nil
	})
}

// List pages through the caller's orders, newest first. Admins may filter
// by company.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, func(r *http.Request, actor internalorders.Actor) (any, error) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return nil, err
		}
		filters, err := listFilters(r)
		if err != nil {
			return nil, err
		}
		page, err := svc.List(r.Context(), actor, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}, filters)
		if err != nil {
			return nil, err
		}
		return toOrderListResponse(page), nil
	})
}

// Detail returns one order with its status history.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return simple(svc, logg, internalorders.Service.Get)
}

func Authorize(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return simple(svc, logg, internalorders.Service.Authorize)
}

func Process(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return simple(svc, logg, internalorders.Service.Process)
}

func MarkDispatching(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return simple(svc, logg, internalorders.Service.MarkDispatching)
}

func MarkReceived(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return simple(svc, logg, internalorders.Service.MarkReceived)
}

// Dispatch records courier details and moves the order to dispatched.
func Dispatch(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, orderScoped(logg,
		func(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor, r *http.Request) (*models.Order, error) {
			var body dispatchRequest
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				return nil, err
			}
			return svc.Dispatch(ctx, orderID, actor, internalorders.DispatchInput{
				TrackingNumber: body.TrackingNumber,
				CourierName:    body.CourierName,
				Notes:          body.Notes,
			})
		}))
}

// Reject ends the order from any non-terminal state.
func Reject(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc, logg, http.StatusOK, orderScoped(logg,
		func(ctx context.Context, orderID uuid.UUID, actor internalorders.Actor, r *http.Request) (*models.Order, error) {
			var body rejectRequest
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				return nil, err
			}
			return svc.Reject(ctx, orderID, actor, body.Reason)
		}))
}

func listFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		filters.Status = &status
	}
	for param, dst := range map[string]**uuid.UUID{
		"brandId":   &filters.BrandID,
		"companyId": &filters.CompanyID,
	} {
		raw := strings.TrimSpace(query.Get(param))
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
		}
		*dst = &id
	}
	return filters, nil
}
