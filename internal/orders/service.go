package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/internal/ledger"
	"github.com/qrseal/qrseal-backend/internal/notifications"
	"github.com/qrseal/qrseal-backend/pkg/db"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	"github.com/qrseal/qrseal-backend/pkg/outbox"
	"github.com/qrseal/qrseal-backend/pkg/outbox/payloads"
	"github.com/qrseal/qrseal-backend/pkg/pagination"
)

const orderNumberPrefix = "ORD-"

// Service drives an order through its lifecycle. Every transition runs in one
// transaction with the order row locked and appends exactly one history entry.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Authorize(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Process(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	MarkDispatching(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Dispatch(ctx context.Context, orderID uuid.UUID, actor Actor, input DispatchInput) (*models.Order, error)
	MarkReceived(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Reject(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	List(ctx context.Context, actor Actor, params pagination.Params, filters ListFilters) (*OrderList, error)
}

type ServiceParams struct {
	Repository          Repository
	Tx                  txRunner
	Ledger              creditLedger
	Brands              brandResolver
	Issuer              qrIssuer
	Dispatcher          dispatcher
	Logger              *logger.Logger
	RefundOnReject      bool
	LowBalanceThreshold int
	Clock               func() time.Time
}

type service struct {
	repo                Repository
	tx                  txRunner
	ledger              creditLedger
	brands              brandResolver
	issuer              qrIssuer
	notify              dispatcher
	logg                *logger.Logger
	refundOnReject      bool
	lowBalanceThreshold int
	now                 func() time.Time
}

// NewService builds the order state machine with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("credit ledger required")
	}
	if params.Brands == nil {
		return nil, fmt.Errorf("brand resolver required")
	}
	if params.Issuer == nil {
		return nil, fmt.Errorf("qr issuer required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:                params.Repository,
		tx:                  params.Tx,
		ledger:              params.Ledger,
		brands:              params.Brands,
		issuer:              params.Issuer,
		notify:              params.Dispatcher,
		logg:                params.Logger,
		refundOnReject:      params.RefundOnReject,
		lowBalanceThreshold: params.LowBalanceThreshold,
		now:                 now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if err := requireRole(input.Actor, "create", enums.ActorRoleCreator, enums.ActorRoleCompany); err != nil {
		return nil, err
	}
	if input.Actor.CompanyID == nil || *input.Actor.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "company context missing")
	}
	productName := strings.TrimSpace(input.ProductName)
	if productName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "productName is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	companyID := *input.Actor.CompanyID
	brand, err := s.brands.Resolve(ctx, companyID, input.BrandID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: orderNumberPrefix + ulid.Make().String(),
		CompanyID:   companyID,
		BrandID:     brand.ID,
		ProductName: productName,
		Description: input.Description,
		Quantity:    input.Quantity,
		Status:      enums.OrderStatusPendingAuthorization,
		CreatedBy:   input.Actor.UserID,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number already issued, retry the request")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		entry := historyEntry(order.ID, enums.OrderStatusPendingAuthorization, input.Actor, nil)
		if err := repo.AppendHistory(ctx, &entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order history")
		}
		order.History = []models.OrderHistoryEntry{entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Dispatch(ctx, notifications.Event{
		Type:          enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(input.Actor),
		Data: payloads.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CompanyID:   order.CompanyID,
			BrandID:     order.BrandID,
			ProductName: order.ProductName,
			Quantity:    order.Quantity,
			CreatedBy:   order.CreatedBy,
		},
	})
	s.log(ctx, order, "order created")
	return order, nil
}

func (s *service) Authorize(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	var spend *models.CreditTransaction
	order, err := s.transition(ctx, orderID, actor, transition{
		name:  "authorize",
		roles: []enums.ActorRole{enums.ActorRoleAuthorizer, enums.ActorRoleCompany},
		from:  []enums.OrderStatus{enums.OrderStatusPendingAuthorization},
		to:    enums.OrderStatusAuthorized,
		apply: func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, error) {
			entry, err := s.ledger.SpendTx(ctx, tx, ledger.SpendInput{
				CompanyID:   order.CompanyID,
				Amount:      order.Quantity,
				OrderID:     order.ID,
				PerformedBy: &actor.UserID,
			})
			if err != nil {
				return nil, err
			}
			spend = entry
			return nil, nil
		},
	})
	if err != nil {
		return nil, err
	}
	if event, low := notifications.CreditsLow(order.CompanyID, spend.BalanceAfter, s.lowBalanceThreshold); low {
		s.notify.Dispatch(ctx, event)
	}
	return order, nil
}

// Process moves an authorized order into production and mints its QR codes. The
// status change commits before generation; an order left in order_processing without
// codes is picked up again by a later Process call.
func (s *service) Process(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if err := requireRole(actor, "process", enums.ActorRoleAdmin); err != nil {
		return nil, err
	}

	current, err := s.load(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	brand, err := s.brands.Get(ctx, current.BrandID)
	if err != nil {
		return nil, err
	}
	if current.Status == enums.OrderStatusOrderProcessing && !current.QRCodesGenerated {
		return s.generateCodes(ctx, orderID, brand)
	}

	if _, err := s.transition(ctx, orderID, actor, transition{
		name:  "process",
		roles: []enums.ActorRole{enums.ActorRoleAdmin},
		from:  []enums.OrderStatus{enums.OrderStatusAuthorized},
		to:    enums.OrderStatusOrderProcessing,
	}); err != nil {
		return nil, err
	}
	return s.generateCodes(ctx, orderID, brand)
}

func (s *service) generateCodes(ctx context.Context, orderID uuid.UUID, brand *models.Brand) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoErr(err, "load order")
		}
		if order.Status != enums.OrderStatusOrderProcessing || order.QRCodesGenerated {
			return nil
		}
		if _, err := s.issuer.MintTx(ctx, tx, order, brand); err != nil {
			return err
		}
		if err := repo.Update(ctx, order.ID, map[string]any{"qr_codes_generated": true}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark qr codes generated")
		}
		order.QRCodesGenerated = true
		return nil
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "qr generation failed; order can be reprocessed", err)
		}
		return nil, err
	}
	s.log(ctx, order, "qr codes generated")
	return order, nil
}

func (s *service) MarkDispatching(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.transition(ctx, orderID, actor, transition{
		name:  "markDispatching",
		roles: []enums.ActorRole{enums.ActorRoleAdmin},
		from:  []enums.OrderStatus{enums.OrderStatusOrderProcessing},
		to:    enums.OrderStatusDispatching,
		apply: func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, error) {
			if !order.QRCodesGenerated {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "qr codes have not been generated").
					WithDetails(StateConflict{Operation: "markDispatching", CurrentStatus: order.Status})
			}
			return nil, nil
		},
	})
}

func (s *service) Dispatch(ctx context.Context, orderID uuid.UUID, actor Actor, input DispatchInput) (*models.Order, error) {
	tracking := strings.TrimSpace(input.TrackingNumber)
	courier := strings.TrimSpace(input.CourierName)
	if tracking == "" || courier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "trackingNumber and courierName are required")
	}
	return s.transition(ctx, orderID, actor, transition{
		name:    "dispatch",
		roles:   []enums.ActorRole{enums.ActorRoleAdmin},
		from:    []enums.OrderStatus{enums.OrderStatusDispatching},
		to:      enums.OrderStatusDispatched,
		comment: input.Notes,
		apply: func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, error) {
			at := s.now()
			order.TrackingNumber = &tracking
			order.CourierName = &courier
			order.DispatchNotes = input.Notes
			order.DispatchedAt = &at
			return map[string]any{
				"tracking_number": tracking,
				"courier_name":    courier,
				"dispatch_notes":  input.Notes,
				"dispatched_at":   at,
			}, nil
		},
	})
}

func (s *service) MarkReceived(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	return s.transition(ctx, orderID, actor, transition{
		name:  "markReceived",
		roles: []enums.ActorRole{enums.ActorRoleAuthorizer, enums.ActorRoleCompany},
		from:  []enums.OrderStatus{enums.OrderStatusDispatched},
		to:    enums.OrderStatusReceived,
		apply: func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, error) {
			activated, err := s.issuer.ActivateTx(ctx, tx, order, s.now())
			if err != nil {
				return nil, err
			}
			order.ActivatedCount += int(activated)
			return map[string]any{"activated_count": order.ActivatedCount}, nil
		},
	})
}

func (s *service) Reject(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	return s.transition(ctx, orderID, actor, transition{
		name:    "reject",
		roles:   []enums.ActorRole{enums.ActorRoleAuthorizer, enums.ActorRoleCompany, enums.ActorRoleAdmin},
		from:    nonTerminalStatuses,
		to:      enums.OrderStatusRejected,
		comment: &reason,
		apply: func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, error) {
			if !s.refundOnReject || order.Status == enums.OrderStatusPendingAuthorization {
				return nil, nil
			}
			note := "refund for rejected order " + order.OrderNumber
			orderID := order.ID
			_, err := s.ledger.GrantTx(ctx, tx, ledger.GrantInput{
				CompanyID:   order.CompanyID,
				Amount:      order.Quantity,
				Type:        enums.CreditTransactionRefund,
				Note:        &note,
				OrderID:     &orderID,
				PerformedBy: &actor.UserID,
			})
			return nil, err
		},
	})
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.repo.FindWithHistory(ctx, orderID)
	if err != nil {
		return nil, mapRepoErr(err, "load order")
	}
	if err := checkTenant(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) List(ctx context.Context, actor Actor, params pagination.Params, filters ListFilters) (*OrderList, error) {
	if !actor.IsAdmin() {
		if actor.CompanyID == nil || *actor.CompanyID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "company context missing")
		}
		filters.CompanyID = actor.CompanyID
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

type transition struct {
	name    string
	roles   []enums.ActorRole
	from    []enums.OrderStatus
	to      enums.OrderStatus
	comment *string
	// apply runs inside the transaction after all checks; returned columns are
	// written together with the new status.
	apply func(ctx context.Context, tx *gorm.DB, order *models.Order) (map[string]any, error)
}

var nonTerminalStatuses = []enums.OrderStatus{
	enums.OrderStatusPendingAuthorization,
	enums.OrderStatusAuthorized,
	enums.OrderStatusOrderProcessing,
	enums.OrderStatusDispatching,
	enums.OrderStatusDispatched,
}

func (s *service) transition(ctx context.Context, orderID uuid.UUID, actor Actor, t transition) (*models.Order, error) {
	if err := requireRole(actor, t.name, t.roles...); err != nil {
		return nil, err
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var (
		order    *models.Order
		previous enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoErr(err, "load order")
		}
		if err := checkTenant(order, actor); err != nil {
			return err
		}
		if !statusIn(order.Status, t.from) {
			return illegalTransition(t, order.Status)
		}

		updates := map[string]any{}
		if t.apply != nil {
			extra, err := t.apply(ctx, tx, order)
			if err != nil {
				return err
			}
			for k, v := range extra {
				updates[k] = v
			}
		}

		previous = order.Status
		updates["status"] = t.to
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = t.to

		entry := historyEntry(order.ID, t.to, actor, t.comment)
		if err := repo.AppendHistory(ctx, &entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify.Dispatch(ctx, notifications.Event{
		Type:          enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(actor),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CompanyID:      order.CompanyID,
			BrandID:        order.BrandID,
			PreviousStatus: previous,
			Status:         order.Status,
			ActorRole:      actor.Role,
			Comment:        t.comment,
			TrackingNumber: order.TrackingNumber,
			CourierName:    order.CourierName,
		},
	})
	s.log(ctx, order, "order "+t.name)
	return order, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapRepoErr(err, "load order")
	}
	if err := checkTenant(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) log(ctx context.Context, order *models.Order, msg string) {
	if s.logg == nil || order == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"company_id":   order.CompanyID.String(),
	})
	s.logg.Info(logCtx, msg)
}

func requireRole(actor Actor, operation string, roles ...enums.ActorRole) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.Role.In(roles...) {
		return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("role %s cannot %s orders", actor.Role, operation))
	}
	return nil
}

// checkTenant hides other tenants' orders behind NOT_FOUND.
func checkTenant(order *models.Order, actor Actor) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.CompanyID == nil || *actor.CompanyID != order.CompanyID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return nil
}

func statusIn(status enums.OrderStatus, allowed []enums.OrderStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}

func illegalTransition(t transition, current enums.OrderStatus) error {
	allowed := make([]string, 0, len(t.from))
	for _, status := range t.from {
		allowed = append(allowed, status.String())
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s an order in status %s", t.name, current)).
		WithDetails(StateConflict{Operation: t.name, CurrentStatus: current, Allowed: allowed})
}

func historyEntry(orderID uuid.UUID, status enums.OrderStatus, actor Actor, comment *string) models.OrderHistoryEntry {
	return models.OrderHistoryEntry{
		ID:        uuid.New(),
		OrderID:   orderID,
		Status:    status,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		Comment:   comment,
	}
}

func buildActor(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:    actor.UserID,
		CompanyID: actor.CompanyID,
		Role:      actor.Role.String(),
	}
}

func mapRepoErr(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
