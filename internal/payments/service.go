package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/internal/ledger"
	"github.com/qrseal/qrseal-backend/internal/notifications"
	"github.com/qrseal/qrseal-backend/pkg/db"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	"github.com/qrseal/qrseal-backend/pkg/metrics"
	"github.com/qrseal/qrseal-backend/pkg/outbox"
	"github.com/qrseal/qrseal-backend/pkg/outbox/payloads"
)

const merchantOrderPrefix = "MO-"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type creditGranter interface {
	GrantTx(ctx context.Context, tx *gorm.DB, input ledger.GrantInput) (*models.CreditTransaction, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, event notifications.Event)
}

// Locker is satisfied by *redislock.Client.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// Service takes a credit purchase from initiation to settlement. Reconcile is the
// single point where gateway outcomes become ledger grants, whatever channel they
// arrive on.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error)
	Sync(ctx context.Context, merchantOrderID string, channel Channel) (*models.Payment, error)
	Get(ctx context.Context, merchantOrderID string, companyID *uuid.UUID) (*models.Payment, error)
	ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error)
}

type InitiateInput struct {
	CompanyID   uuid.UUID
	InitiatedBy uuid.UUID
	Type        enums.PaymentType
	PlanID      *uuid.UUID
	Quantity    int
	CouponCode  *string
}

type InitiateResult struct {
	Payment   *models.Payment
	Breakdown Breakdown
}

type ReconcileInput struct {
	MerchantOrderID      string
	Outcome              Outcome
	GatewayTransactionID string
	FailureReason        string
	Channel              Channel
}

// ReconcileResult reports the stored payment after reconciliation. Applied is false
// when the call changed nothing.
type ReconcileResult struct {
	Payment *models.Payment
	Applied bool
}

type ServiceParams struct {
	Repository      Repository
	Tx              txRunner
	Ledger          creditGranter
	Gateway         Gateway
	Dispatcher      dispatcher
	Locker          Locker
	LockKey         func(merchantOrderID string) string
	Config          Config
	Logger          *logger.Logger
	Clock           func() time.Time
	MerchantOrderID func() string
}

// Config is the payment behaviour the service needs from pkg/config.
type Config struct {
	Pricer           Pricer
	TestChargeAmount decimal.Decimal
	MinTopupCredits  int
	LockTTL          time.Duration
}

type service struct {
	repo       Repository
	tx         txRunner
	ledger     creditGranter
	gateway    Gateway
	notify     dispatcher
	locker     Locker
	lockKey    func(string) string
	cfg        Config
	logg       *logger.Logger
	now        func() time.Time
	newOrderID func() string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("credit ledger required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	svc := &service{
		repo:       params.Repository,
		tx:         params.Tx,
		ledger:     params.Ledger,
		gateway:    params.Gateway,
		notify:     params.Dispatcher,
		locker:     params.Locker,
		lockKey:    params.LockKey,
		cfg:        params.Config,
		logg:       params.Logger,
		now:        params.Clock,
		newOrderID: params.MerchantOrderID,
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.newOrderID == nil {
		svc.newOrderID = func() string { return merchantOrderPrefix + ulid.Make().String() }
	}
	if svc.lockKey == nil {
		svc.lockKey = func(id string) string { return "payments:reconcile:" + id }
	}
	if svc.cfg.LockTTL <= 0 {
		svc.cfg.LockTTL = 30 * time.Second
	}
	if svc.cfg.MinTopupCredits <= 0 {
		svc.cfg.MinTopupCredits = 1
	}
	return svc, nil
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "company context missing")
	}
	if input.InitiatedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	company, err := s.repo.FindCompany(ctx, input.CompanyID)
	if err != nil {
		return nil, mapRepoErr(err, "load company")
	}
	breakdown, planID, err := s.quote(ctx, input)
	if err != nil {
		return nil, err
	}
	if !breakdown.FinalAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payable amount must be positive")
	}

	charged := breakdown.FinalAmount
	if company.IsTestAccount {
		charged = s.cfg.TestChargeAmount
	}

	payment := &models.Payment{
		ID:                uuid.New(),
		CompanyID:         company.ID,
		Type:              input.Type,
		PlanID:            planID,
		Credits:           breakdown.Credits,
		MerchantOrderID:   s.newOrderID(),
		BaseAmount:        breakdown.BaseAmount,
		CouponCode:        breakdown.CouponCode,
		CouponDiscount:    breakdown.CouponDiscount,
		GSTAmount:         breakdown.GSTAmount,
		AdditionalCharges: breakdown.AdditionalCharges,
		FinalAmount:       breakdown.FinalAmount,
		ChargedAmount:     charged,
		Currency:          breakdown.Currency,
		Status:            enums.PaymentStatusPending,
		InitiatedBy:       input.InitiatedBy,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "merchant order id already issued, retry the request")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	if err := s.openSession(ctx, payment); err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logCtx(ctx, payment), "payment initiated")
	}
	return &InitiateResult{Payment: payment, Breakdown: breakdown}, nil
}

// openSession asks the gateway for a hosted checkout and stores its id on the payment.
// The gateway deduplicates on the merchant order id, so calling it again for a payment
// whose first attempt timed out returns the session that attempt may have created.
func (s *service) openSession(ctx context.Context, payment *models.Payment) error {
	sess, err := s.gateway.CreateSession(ctx, SessionRequest{
		MerchantOrderID: payment.MerchantOrderID,
		Amount:          payment.ChargedAmount,
		Currency:        payment.Currency,
		Description:     fmt.Sprintf("%d QR credits", payment.Credits),
		Metadata:        map[string]string{"company_id": payment.CompanyID.String()},
	})
	if err != nil {
		if IsRejected(err) {
			s.markFailed(ctx, payment, err.Error())
		} else if s.logg != nil {
			s.logg.Warn(s.logg.WithField(s.logCtx(ctx, payment), "error", err.Error()), "gateway unavailable; payment left pending")
		}
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway request failed").
			WithDetails(map[string]any{"merchantOrderId": payment.MerchantOrderID, "status": payment.Status})
	}

	payment.GatewaySessionID = &sess.ID
	if sess.RedirectURL != "" {
		payment.RedirectURL = &sess.RedirectURL
	}
	if err := s.repo.Update(ctx, payment.ID, map[string]any{
		"gateway_session_id": payment.GatewaySessionID,
		"redirect_url":       payment.RedirectURL,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway session")
	}
	return nil
}

func (s *service) quote(ctx context.Context, input InitiateInput) (Breakdown, *uuid.UUID, error) {
	var (
		credits int
		base    decimal.Decimal
		planID  *uuid.UUID
	)
	switch input.Type {
	case enums.PaymentTypePlan:
		if input.PlanID == nil || *input.PlanID == uuid.Nil {
			return Breakdown{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "planId is required for plan purchases")
		}
		plan, err := s.repo.FindActivePlan(ctx, *input.PlanID)
		if err != nil {
			return Breakdown{}, nil, mapRepoErr(err, "load plan")
		}
		credits, base = plan.Credits, plan.Price
		id := plan.ID
		planID = &id
	case enums.PaymentTypeTopup:
		if input.Quantity < s.cfg.MinTopupCredits {
			return Breakdown{}, nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("quantity must be at least %d", s.cfg.MinTopupCredits))
		}
		credits, base = input.Quantity, s.cfg.Pricer.TopupBase(input.Quantity)
	default:
		return Breakdown{}, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment type %q", input.Type))
	}

	var coupon *models.Coupon
	if input.CouponCode != nil && strings.TrimSpace(*input.CouponCode) != "" {
		found, err := s.repo.FindActiveCoupon(ctx, *input.CouponCode, s.now())
		if err != nil {
			return Breakdown{}, nil, mapRepoErr(err, "load coupon")
		}
		coupon = found
	}
	return s.cfg.Pricer.Price(credits, base, coupon), planID, nil
}

// Reconcile applies a gateway outcome. The payment row is locked for the whole
// transaction, so concurrent deliveries of the same outcome grant credits once.
func (s *service) Reconcile(ctx context.Context, input ReconcileInput) (*ReconcileResult, error) {
	merchantOrderID := strings.TrimSpace(input.MerchantOrderID)
	if merchantOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchantOrderId is required")
	}

	var (
		result ReconcileResult
		grant  *models.CreditTransaction
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByMerchantOrderIDForUpdate(ctx, merchantOrderID)
		if err != nil {
			return mapRepoErr(err, "load payment")
		}
		result.Payment = payment

		switch {
		case payment.Settled():
			return nil
		case payment.Status == enums.PaymentStatusCompleted:
			grant, err = s.grantTx(ctx, tx, repo, payment, input)
			result.Applied = err == nil
			return err
		}

		switch input.Outcome {
		case OutcomeSuccess:
			grant, err = s.grantTx(ctx, tx, repo, payment, input)
			result.Applied = err == nil
			return err
		case OutcomeFailure:
			at := s.now()
			reason := strings.TrimSpace(input.FailureReason)
			if reason == "" {
				reason = "payment failed at gateway"
			}
			updates := map[string]any{
				"status":         enums.PaymentStatusFailed,
				"failed_at":      at,
				"failure_reason": reason,
			}
			if input.GatewayTransactionID != "" {
				updates["gateway_transaction_id"] = input.GatewayTransactionID
			}
			if err := repo.Update(ctx, payment.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
			}
			payment.Status = enums.PaymentStatusFailed
			payment.FailedAt = &at
			payment.FailureReason = &reason
			result.Applied = true
			return nil
		default:
			return nil
		}
	})
	if err != nil {
		metrics.ObservePaymentReconcile(string(input.Channel), metrics.OutcomeFailed)
		return nil, err
	}

	s.afterReconcile(ctx, result, grant, input.Channel)
	return &result, nil
}

func (s *service) grantTx(ctx context.Context, tx *gorm.DB, repo Repository, payment *models.Payment, input ReconcileInput) (*models.CreditTransaction, error) {
	paymentID := payment.ID
	note := "payment " + payment.MerchantOrderID
	entry, err := s.ledger.GrantTx(ctx, tx, ledger.GrantInput{
		CompanyID:   payment.CompanyID,
		Amount:      payment.Credits,
		Type:        payment.Type.CreditTransactionType(),
		Note:        &note,
		PaymentID:   &paymentID,
		PerformedBy: &payment.InitiatedBy,
	})
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"credit_transaction_id": entry.ID}
	if payment.Status != enums.PaymentStatusCompleted {
		at := s.now()
		updates["status"] = enums.PaymentStatusCompleted
		updates["completed_at"] = at
		payment.Status = enums.PaymentStatusCompleted
		payment.CompletedAt = &at
	}
	if input.GatewayTransactionID != "" && payment.GatewayTransactionID == nil {
		updates["gateway_transaction_id"] = input.GatewayTransactionID
		txID := input.GatewayTransactionID
		payment.GatewayTransactionID = &txID
	}
	if err := repo.Update(ctx, payment.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment completed")
	}
	payment.CreditTransactionID = &entry.ID
	return entry, nil
}

func (s *service) afterReconcile(ctx context.Context, result ReconcileResult, grant *models.CreditTransaction, channel Channel) {
	payment := result.Payment
	if !result.Applied {
		metrics.ObservePaymentReconcile(string(channel), metrics.OutcomeNoop)
		return
	}
	logCtx := s.logCtx(ctx, payment)
	if s.logg != nil {
		logCtx = s.logg.WithField(logCtx, "channel", string(channel))
	}

	switch payment.Status {
	case enums.PaymentStatusCompleted:
		metrics.ObservePaymentReconcile(string(channel), metrics.OutcomeSuccess)
		data := payloads.PaymentCompletedEvent{
			PaymentID:       payment.ID,
			MerchantOrderID: payment.MerchantOrderID,
			CompanyID:       payment.CompanyID,
			Type:            payment.Type,
			Credits:         payment.Credits,
			FinalAmount:     payment.FinalAmount.StringFixed(2),
			ChargedAmount:   payment.ChargedAmount.StringFixed(2),
			Currency:        payment.Currency,
		}
		if grant != nil {
			data.CreditTransactionID = grant.ID
			data.BalanceAfter = grant.BalanceAfter
		}
		if payment.CompletedAt != nil {
			data.CompletedAt = *payment.CompletedAt
		}
		s.notify.Dispatch(ctx, notifications.Event{
			Type:          enums.EventPaymentCompleted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         &outbox.ActorRef{UserID: payment.InitiatedBy, CompanyID: &payment.CompanyID},
			Data:          data,
		})
		if s.logg != nil {
			s.logg.Info(logCtx, "payment completed; credits granted")
		}
	case enums.PaymentStatusFailed:
		metrics.ObservePaymentReconcile(string(channel), metrics.OutcomeRejected)
		s.dispatchFailed(ctx, payment)
		if s.logg != nil {
			s.logg.Info(logCtx, "payment failed")
		}
	}
}

// Sync asks the gateway for the session state of a pending payment and reconciles it.
func (s *service) Sync(ctx context.Context, merchantOrderID string, channel Channel) (*models.Payment, error) {
	payment, err := s.repo.FindByMerchantOrderID(ctx, strings.TrimSpace(merchantOrderID))
	if err != nil {
		return nil, mapRepoErr(err, "load payment")
	}
	if payment.Settled() {
		return payment, nil
	}
	if payment.Status == enums.PaymentStatusCompleted {
		res, err := s.Reconcile(ctx, ReconcileInput{MerchantOrderID: payment.MerchantOrderID, Outcome: OutcomeSuccess, Channel: channel})
		if err != nil {
			return nil, err
		}
		return res.Payment, nil
	}

	release, held := s.obtainLock(ctx, payment.MerchantOrderID)
	if !held {
		return payment, nil
	}
	defer release()

	// Initiate timed out before a session id was stored.
	if payment.GatewaySessionID == nil || *payment.GatewaySessionID == "" {
		if err := s.openSession(ctx, payment); err != nil {
			if payment.Status == enums.PaymentStatusFailed {
				return payment, nil
			}
			return nil, err
		}
	}

	status, err := s.gateway.SessionStatus(ctx, *payment.GatewaySessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway status lookup failed")
	}
	if status.Outcome == OutcomePending {
		return payment, nil
	}
	res, err := s.Reconcile(ctx, ReconcileInput{
		MerchantOrderID:      payment.MerchantOrderID,
		Outcome:              status.Outcome,
		GatewayTransactionID: status.TransactionID,
		FailureReason:        status.Reason,
		Channel:              channel,
	})
	if err != nil {
		return nil, err
	}
	return res.Payment, nil
}

// obtainLock takes the per-payment redis lock. held is false only when another
// worker already holds it; lock infrastructure failures fall through to the DB gate.
func (s *service) obtainLock(ctx context.Context, merchantOrderID string) (release func(), held bool) {
	noop := func() {}
	if s.locker == nil {
		return noop, true
	}
	lock, err := s.locker.Obtain(ctx, s.lockKey(merchantOrderID), s.cfg.LockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return noop, false
	}
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"merchant_order_id": merchantOrderID,
				"error":             err.Error(),
			}), "reconcile lock unavailable")
		}
		return noop, true
	}
	return func() { _ = lock.Release(context.WithoutCancel(ctx)) }, true
}

func (s *service) Get(ctx context.Context, merchantOrderID string, companyID *uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByMerchantOrderID(ctx, strings.TrimSpace(merchantOrderID))
	if err != nil {
		return nil, mapRepoErr(err, "load payment")
	}
	if companyID != nil && payment.CompanyID != *companyID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *service) ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.repo.ListPending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending payments")
	}
	return rows, nil
}

func (s *service) markFailed(ctx context.Context, payment *models.Payment, reason string) {
	at := s.now()
	if err := s.repo.Update(ctx, payment.ID, map[string]any{
		"status":         enums.PaymentStatusFailed,
		"failed_at":      at,
		"failure_reason": reason,
	}); err != nil {
		if s.logg != nil {
			s.logg.Error(s.logCtx(ctx, payment), "mark rejected payment failed", err)
		}
		return
	}
	payment.Status = enums.PaymentStatusFailed
	payment.FailedAt = &at
	payment.FailureReason = &reason
	s.dispatchFailed(ctx, payment)
}

func (s *service) dispatchFailed(ctx context.Context, payment *models.Payment) {
	reason := ""
	if payment.FailureReason != nil {
		reason = *payment.FailureReason
	}
	s.notify.Dispatch(ctx, notifications.Event{
		Type:          enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         &outbox.ActorRef{UserID: payment.InitiatedBy, CompanyID: &payment.CompanyID},
		Data: payloads.PaymentFailedEvent{
			PaymentID:       payment.ID,
			MerchantOrderID: payment.MerchantOrderID,
			CompanyID:       payment.CompanyID,
			Reason:          reason,
		},
	})
}

func (s *service) logCtx(ctx context.Context, payment *models.Payment) context.Context {
	if s.logg == nil || payment == nil {
		return ctx
	}
	ctx = s.logg.WithMerchantOrderID(ctx, payment.MerchantOrderID)
	return s.logg.WithCompanyID(ctx, payment.CompanyID.String())
}

func mapRepoErr(err error, msg string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	case errors.Is(err, ErrPlanNotFound):
		return pkgerrors.New(pkgerrors.CodeValidation, "plan not found or inactive")
	case errors.Is(err, ErrCouponNotFound):
		return pkgerrors.New(pkgerrors.CodeValidation, "coupon is invalid or expired")
	case errors.Is(err, ErrCompanyNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
