package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/internal/ledger"
	"github.com/qrseal/qrseal-backend/internal/notifications"
	"github.com/qrseal/qrseal-backend/pkg/db/dbtest"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
)

type stubGateway struct {
	mu        sync.Mutex
	createErr error
	status    *SessionStatus
	statusErr error
	requests  []SessionRequest
	lookups   int
}

func (g *stubGateway) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &Session{ID: "cs_" + req.MerchantOrderID, RedirectURL: "https://pay.test/" + req.MerchantOrderID}, nil
}

func (g *stubGateway) SessionStatus(context.Context, string) (*SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	return g.status, g.statusErr
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingDispatcher) Dispatch(_ context.Context, event notifications.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingDispatcher) count(eventType enums.OutboxEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type busyLocker struct{}

func (busyLocker) Obtain(context.Context, string, time.Duration, *redislock.Options) (*redislock.Lock, error) {
	return nil, redislock.ErrNotObtained
}

type fixture struct {
	svc     Service
	conn    *gorm.DB
	ledger  ledger.Service
	gateway *stubGateway
	events  *recordingDispatcher
	company models.Company
	userID  uuid.UUID
}

func newFixture(t *testing.T, testAccount bool, locker Locker) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	credits, err := ledger.NewService(ledger.ServiceParams{Repository: ledger.NewRepository(conn), Tx: client})
	require.NoError(t, err)

	gw := &stubGateway{}
	events := &recordingDispatcher{}
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		Tx:         client,
		Ledger:     credits,
		Gateway:    gw,
		Dispatcher: events,
		Locker:     locker,
		Config: Config{
			Pricer:           testPricer("0"),
			TestChargeAmount: decimal.NewFromInt(1),
		},
	})
	require.NoError(t, err)

	company := models.Company{ID: uuid.New(), Name: "Acme", IsTestAccount: testAccount}
	require.NoError(t, conn.Create(&company).Error)
	return fixture{svc: svc, conn: conn, ledger: credits, gateway: gw, events: events, company: company, userID: uuid.New()}
}

func (f fixture) initiateTopup(t *testing.T, quantity int) *InitiateResult {
	t.Helper()
	res, err := f.svc.Initiate(context.Background(), InitiateInput{
		CompanyID:   f.company.ID,
		InitiatedBy: f.userID,
		Type:        enums.PaymentTypeTopup,
		Quantity:    quantity,
	})
	require.NoError(t, err)
	return res
}

func (f fixture) balance(t *testing.T) int {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), f.company.ID)
	require.NoError(t, err)
	return b
}

func TestInitiate_TopupScenario(t *testing.T) {
	f := newFixture(t, false, nil)
	res := f.initiateTopup(t, 100)

	p := res.Payment
	assert.Equal(t, enums.PaymentStatusPending, p.Status)
	assert.Regexp(t, `^MO-[0-9A-Z]{26}$`, p.MerchantOrderID)
	assert.Equal(t, "590.00", p.FinalAmount.StringFixed(2))
	assert.Equal(t, "590.00", p.ChargedAmount.StringFixed(2))
	assert.Equal(t, 100, p.Credits)
	require.NotNil(t, p.RedirectURL)
	require.NotNil(t, p.GatewaySessionID)

	stored, err := f.svc.Get(context.Background(), p.MerchantOrderID, &f.company.ID)
	require.NoError(t, err)
	assert.Equal(t, *p.GatewaySessionID, *stored.GatewaySessionID)
	assert.True(t, stored.FinalAmount.Equal(decimal.NewFromInt(590)))

	other := uuid.New()
	_, err = f.svc.Get(context.Background(), p.MerchantOrderID, &other)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestInitiate_TestAccountPaysOverrideButGetsEntitlement(t *testing.T) {
	f := newFixture(t, true, nil)
	res := f.initiateTopup(t, 100)

	assert.Equal(t, "1.00", res.Payment.ChargedAmount.StringFixed(2))
	assert.Equal(t, "590.00", res.Payment.FinalAmount.StringFixed(2))
	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, "1.00", f.gateway.requests[0].Amount.StringFixed(2))

	_, err := f.svc.Reconcile(context.Background(), ReconcileInput{
		MerchantOrderID: res.Payment.MerchantOrderID,
		Outcome:         OutcomeSuccess,
		Channel:         ChannelWebhook,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, f.balance(t))
}

func TestInitiate_Validation(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, InitiateInput{CompanyID: f.company.ID, InitiatedBy: f.userID, Type: enums.PaymentTypeTopup, Quantity: 0})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = f.svc.Initiate(ctx, InitiateInput{CompanyID: f.company.ID, InitiatedBy: f.userID, Type: enums.PaymentTypePlan})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	missing := uuid.New()
	_, err = f.svc.Initiate(ctx, InitiateInput{CompanyID: f.company.ID, InitiatedBy: f.userID, Type: enums.PaymentTypePlan, PlanID: &missing})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	code := "NOPE"
	_, err = f.svc.Initiate(ctx, InitiateInput{CompanyID: f.company.ID, InitiatedBy: f.userID, Type: enums.PaymentTypeTopup, Quantity: 5, CouponCode: &code})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Empty(t, f.gateway.requests)
}

func TestInitiate_PlanWithCoupon(t *testing.T) {
	f := newFixture(t, false, nil)
	plan := models.Plan{ID: uuid.New(), Name: "Starter", Credits: 250, Price: decimal.NewFromInt(1000), Active: true}
	require.NoError(t, f.conn.Create(&plan).Error)
	coupon := models.Coupon{ID: uuid.New(), Code: "WELCOME", DiscountType: enums.CouponDiscountPercent, Value: decimal.NewFromInt(20), Active: true}
	require.NoError(t, f.conn.Create(&coupon).Error)

	code := "welcome"
	res, err := f.svc.Initiate(context.Background(), InitiateInput{
		CompanyID:   f.company.ID,
		InitiatedBy: f.userID,
		Type:        enums.PaymentTypePlan,
		PlanID:      &plan.ID,
		CouponCode:  &code,
	})
	require.NoError(t, err)
	assert.Equal(t, 250, res.Breakdown.Credits)
	assert.Equal(t, "200.00", res.Breakdown.CouponDiscount.StringFixed(2))
	assert.Equal(t, "944.00", res.Breakdown.FinalAmount.StringFixed(2))
	require.NotNil(t, res.Payment.PlanID)
}

func TestInitiate_GatewayFailureLeavesPending(t *testing.T) {
	f := newFixture(t, false, nil)
	f.gateway.createErr = context.DeadlineExceeded

	_, err := f.svc.Initiate(context.Background(), InitiateInput{CompanyID: f.company.ID, InitiatedBy: f.userID, Type: enums.PaymentTypeTopup, Quantity: 10})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeGateway))

	var stored models.Payment
	require.NoError(t, f.conn.First(&stored).Error)
	assert.Equal(t, enums.PaymentStatusPending, stored.Status)
	assert.Equal(t, 0, f.events.count(enums.EventPaymentFailed))
}

func TestInitiate_GatewayRejectionMarksFailed(t *testing.T) {
	f := newFixture(t, false, nil)
	f.gateway.createErr = &RejectedError{Reason: "card declined"}

	_, err := f.svc.Initiate(context.Background(), InitiateInput{CompanyID: f.company.ID, InitiatedBy: f.userID, Type: enums.PaymentTypeTopup, Quantity: 10})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeGateway))

	var stored models.Payment
	require.NoError(t, f.conn.First(&stored).Error)
	assert.Equal(t, enums.PaymentStatusFailed, stored.Status)
	assert.Equal(t, 1, f.events.count(enums.EventPaymentFailed))
}

func TestReconcile_DoubleDeliveryGrantsOnce(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()
	mo := f.initiateTopup(t, 100).Payment.MerchantOrderID

	first, err := f.svc.Reconcile(ctx, ReconcileInput{MerchantOrderID: mo, Outcome: OutcomeSuccess, GatewayTransactionID: "pi_1", Channel: ChannelWebhook})
	require.NoError(t, err)
	require.True(t, first.Applied)
	require.NotNil(t, first.Payment.CreditTransactionID)

	second, err := f.svc.Reconcile(ctx, ReconcileInput{MerchantOrderID: mo, Outcome: OutcomeSuccess, GatewayTransactionID: "pi_1", Channel: ChannelCallback})
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, *first.Payment.CreditTransactionID, *second.Payment.CreditTransactionID)

	assert.Equal(t, 100, f.balance(t))
	assert.Equal(t, 1, f.events.count(enums.EventPaymentCompleted))

	var grants int64
	require.NoError(t, f.conn.Model(&models.CreditTransaction{}).Where("company_id = ?", f.company.ID).Count(&grants).Error)
	assert.Equal(t, int64(1), grants)
}

func TestReconcile_ConcurrentDeliveriesGrantOnce(t *testing.T) {
	f := newFixture(t, false, nil)
	mo := f.initiateTopup(t, 40).Payment.MerchantOrderID

	channels := []Channel{ChannelWebhook, ChannelCallback, ChannelStatusPoll, ChannelScheduled}
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, len(channels))
	errs := make([]error, len(channels))
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			res, err := f.svc.Reconcile(context.Background(), ReconcileInput{MerchantOrderID: mo, Outcome: OutcomeSuccess, Channel: ch})
			errs[i] = err
			if err == nil {
				ids[i] = *res.Payment.CreditTransactionID
			}
		}(i, ch)
	}
	wg.Wait()

	for i := range channels {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 40, f.balance(t))
}

func TestReconcile_FailureAndPending(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()
	mo := f.initiateTopup(t, 10).Payment.MerchantOrderID

	open, err := f.svc.Reconcile(ctx, ReconcileInput{MerchantOrderID: mo, Outcome: OutcomePending, Channel: ChannelCallback})
	require.NoError(t, err)
	assert.False(t, open.Applied)
	assert.Equal(t, enums.PaymentStatusPending, open.Payment.Status)

	failed, err := f.svc.Reconcile(ctx, ReconcileInput{MerchantOrderID: mo, Outcome: OutcomeFailure, FailureReason: "expired", Channel: ChannelWebhook})
	require.NoError(t, err)
	assert.True(t, failed.Applied)
	assert.Equal(t, enums.PaymentStatusFailed, failed.Payment.Status)

	late, err := f.svc.Reconcile(ctx, ReconcileInput{MerchantOrderID: mo, Outcome: OutcomeSuccess, Channel: ChannelWebhook})
	require.NoError(t, err)
	assert.False(t, late.Applied)
	assert.Equal(t, enums.PaymentStatusFailed, late.Payment.Status)
	assert.Equal(t, 0, f.balance(t))

	_, err = f.svc.Reconcile(ctx, ReconcileInput{MerchantOrderID: "MO-UNKNOWN", Outcome: OutcomeSuccess})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestReconcile_ResumesCompletedWithoutGrant(t *testing.T) {
	f := newFixture(t, false, nil)
	mo := f.initiateTopup(t, 25).Payment.MerchantOrderID
	require.NoError(t, f.conn.Model(&models.Payment{}).Where("merchant_order_id = ?", mo).
		Update("status", enums.PaymentStatusCompleted).Error)

	res, err := f.svc.Reconcile(context.Background(), ReconcileInput{MerchantOrderID: mo, Outcome: OutcomePending, Channel: ChannelScheduled})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	require.NotNil(t, res.Payment.CreditTransactionID)
	assert.Equal(t, 25, f.balance(t))
}

func TestSync_PollsGateway(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()
	mo := f.initiateTopup(t, 100).Payment.MerchantOrderID

	f.gateway.status = &SessionStatus{Outcome: OutcomePending}
	p, err := f.svc.Sync(ctx, mo, ChannelStatusPoll)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, p.Status)

	f.gateway.status = &SessionStatus{Outcome: OutcomeSuccess, TransactionID: "pi_9"}
	p, err = f.svc.Sync(ctx, mo, ChannelStatusPoll)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, p.Status)
	require.NotNil(t, p.GatewayTransactionID)
	assert.Equal(t, "pi_9", *p.GatewayTransactionID)
	assert.Equal(t, 100, f.balance(t))

	lookups := f.gateway.lookups
	_, err = f.svc.Sync(ctx, mo, ChannelStatusPoll)
	require.NoError(t, err)
	assert.Equal(t, lookups, f.gateway.lookups, "settled payments are not looked up again")
}

func TestSync_GatewayErrorIsReported(t *testing.T) {
	f := newFixture(t, false, nil)
	mo := f.initiateTopup(t, 10).Payment.MerchantOrderID
	f.gateway.statusErr = errors.New("timeout")

	_, err := f.svc.Sync(context.Background(), mo, ChannelStatusPoll)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeGateway))
}

func TestSync_SkipsLookupWhenLockHeld(t *testing.T) {
	f := newFixture(t, false, busyLocker{})
	mo := f.initiateTopup(t, 10).Payment.MerchantOrderID
	f.gateway.status = &SessionStatus{Outcome: OutcomeSuccess}

	p, err := f.svc.Sync(context.Background(), mo, ChannelScheduled)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, p.Status)
	assert.Equal(t, 0, f.gateway.lookups)
}

func TestSync_RecoversSessionAfterInitiateTimeout(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()
	input := InitiateInput{CompanyID: f.company.ID, InitiatedBy: f.userID, Type: enums.PaymentTypeTopup, Quantity: 10}

	f.gateway.createErr = context.DeadlineExceeded
	for i := 0; i < 2; i++ {
		_, err := f.svc.Initiate(ctx, input)
		require.True(t, pkgerrors.Is(err, pkgerrors.CodeGateway))
	}
	f.gateway.createErr = nil
	paid := f.initiateTopup(t, 30).Payment.MerchantOrderID
	f.gateway.status = &SessionStatus{Outcome: OutcomeSuccess, TransactionID: "pi_1"}

	var rows []models.Payment
	require.NoError(t, f.conn.Order("created_at ASC").Find(&rows).Error)
	require.Len(t, rows, 3)
	for i, row := range rows {
		age := time.Duration(i+2) * time.Hour
		if row.MerchantOrderID == paid {
			age = time.Hour
		}
		require.NoError(t, f.conn.Model(&models.Payment{}).Where("id = ?", row.ID).
			Update("created_at", time.Now().UTC().Add(-age)).Error)
	}

	for run := 0; run < 2; run++ {
		pending, err := f.svc.ListPending(ctx, 10*time.Minute, 2)
		require.NoError(t, err)
		for _, p := range pending {
			_, err := f.svc.Sync(ctx, p.MerchantOrderID, ChannelScheduled)
			require.NoError(t, err)
		}
	}

	var after []models.Payment
	require.NoError(t, f.conn.Find(&after).Error)
	for _, p := range after {
		assert.Equal(t, enums.PaymentStatusCompleted, p.Status, p.MerchantOrderID)
		require.NotNil(t, p.GatewaySessionID)
		assert.Equal(t, "cs_"+p.MerchantOrderID, *p.GatewaySessionID)
	}
	assert.Equal(t, 50, f.balance(t))
	assert.Equal(t, 3, f.gateway.lookups)

	require.Len(t, f.gateway.requests, 5)
	for _, req := range f.gateway.requests[3:] {
		assert.NotEqual(t, paid, req.MerchantOrderID)
		assert.Equal(t, "10 QR credits", req.Description)
		assert.Equal(t, f.company.ID.String(), req.Metadata["company_id"])
	}
}

func TestSync_RejectedSessionRetryFailsPayment(t *testing.T) {
	f := newFixture(t, false, nil)
	ctx := context.Background()

	f.gateway.createErr = context.DeadlineExceeded
	_, err := f.svc.Initiate(ctx, InitiateInput{CompanyID: f.company.ID, InitiatedBy: f.userID, Type: enums.PaymentTypeTopup, Quantity: 10})
	require.Error(t, err)
	var stored models.Payment
	require.NoError(t, f.conn.First(&stored).Error)

	_, err = f.svc.Sync(ctx, stored.MerchantOrderID, ChannelScheduled)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeGateway), "still unreachable")

	f.gateway.createErr = &RejectedError{Reason: "amount too small"}
	p, err := f.svc.Sync(ctx, stored.MerchantOrderID, ChannelScheduled)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, p.Status)
	assert.Equal(t, 1, f.events.count(enums.EventPaymentFailed))
	assert.Equal(t, 0, f.gateway.lookups)
}

func TestListPending(t *testing.T) {
	f := newFixture(t, false, nil)
	f.initiateTopup(t, 10)
	done := f.initiateTopup(t, 20).Payment.MerchantOrderID
	_, err := f.svc.Reconcile(context.Background(), ReconcileInput{MerchantOrderID: done, Outcome: OutcomeSuccess})
	require.NoError(t, err)

	require.NoError(t, f.conn.Model(&models.Payment{}).Where("1 = 1").
		Update("created_at", time.Now().UTC().Add(-time.Hour)).Error)

	rows, err := f.svc.ListPending(context.Background(), 10*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10, rows[0].Credits)

	rows, err = f.svc.ListPending(context.Background(), 2*time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
