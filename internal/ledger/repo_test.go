package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/db/dbtest"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/pagination"
)

func newSQLiteService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	client, conn := dbtest.Client(t)
	svc, err := NewService(ServiceParams{Repository: NewRepository(conn), Tx: client})
	require.NoError(t, err)
	return svc, conn
}

func seedCompany(t *testing.T, conn *gorm.DB) uuid.UUID {
	t.Helper()
	company := models.Company{ID: uuid.New(), Name: "Acme"}
	require.NoError(t, conn.Create(&company).Error)
	return company.ID
}

func TestLedger_AuthorizeScenario(t *testing.T) {
	ctx := context.Background()
	svc, conn := newSQLiteService(t)
	companyID := seedCompany(t, conn)

	_, err := svc.Grant(ctx, GrantInput{CompanyID: companyID, Amount: 100, Type: enums.CreditTransactionAdminGrant})
	require.NoError(t, err)

	entry, err := svc.Spend(ctx, SpendInput{CompanyID: companyID, Amount: 30, OrderID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 70, entry.BalanceAfter)

	_, err = svc.Spend(ctx, SpendInput{CompanyID: companyID, Amount: 80, OrderID: uuid.New()})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficientCredits, typed.Code())
	details := typed.Details().(InsufficientCredits)
	assert.Equal(t, 80, details.Required)
	assert.Equal(t, 70, details.Available)
	assert.Equal(t, 10, details.Shortfall)

	balance, err := svc.Balance(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, 70, balance)

	check, err := svc.VerifyBalance(ctx, companyID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, int64(2), check.TransactionCount)
}

func TestLedger_ConcurrentSpendsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	svc, conn := newSQLiteService(t)
	companyID := seedCompany(t, conn)
	_, err := svc.Grant(ctx, GrantInput{CompanyID: companyID, Amount: 100, Type: enums.CreditTransactionAdminGrant})
	require.NoError(t, err)

	const workers = 20
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Spend(ctx, SpendInput{CompanyID: companyID, Amount: 10, OrderID: uuid.New()})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.Is(err, pkgerrors.CodeInsufficientCredits):
				insufficient++
			default:
				t.Errorf("unexpected spend error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, insufficient)

	check, err := svc.VerifyBalance(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, 0, check.StoredBalance)
	assert.True(t, check.Consistent)
}

func TestLedger_FailedSpendInsideTxRollsBack(t *testing.T) {
	ctx := context.Background()
	client, conn := dbtest.Client(t)
	svc, err := NewService(ServiceParams{Repository: NewRepository(conn), Tx: client})
	require.NoError(t, err)
	companyID := seedCompany(t, conn)
	_, err = svc.Grant(ctx, GrantInput{CompanyID: companyID, Amount: 50, Type: enums.CreditTransactionAdminGrant})
	require.NoError(t, err)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := svc.SpendTx(ctx, tx, SpendInput{CompanyID: companyID, Amount: 20, OrderID: uuid.New()}); err != nil {
			return err
		}
		_, err := svc.SpendTx(ctx, tx, SpendInput{CompanyID: companyID, Amount: 40, OrderID: uuid.New()})
		return err
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInsufficientCredits))

	balance, err := svc.Balance(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, 50, balance)
}

func TestLedger_ListTransactionsPaginates(t *testing.T) {
	ctx := context.Background()
	svc, conn := newSQLiteService(t)
	companyID := seedCompany(t, conn)
	for i := 0; i < 3; i++ {
		_, err := svc.Grant(ctx, GrantInput{CompanyID: companyID, Amount: 5, Type: enums.CreditTransactionAdminGrant})
		require.NoError(t, err)
	}

	page, err := svc.ListTransactions(ctx, companyID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)

	all, err := svc.ListTransactions(ctx, companyID, pagination.Params{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all.Items, 3)
	assert.Empty(t, all.NextCursor)

	_, err = svc.ListTransactions(ctx, companyID, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestLedger_VerifyDetectsOutOfBandWrite(t *testing.T) {
	ctx := context.Background()
	svc, conn := newSQLiteService(t)
	companyID := seedCompany(t, conn)
	_, err := svc.Grant(ctx, GrantInput{CompanyID: companyID, Amount: 5, Type: enums.CreditTransactionAdminGrant})
	require.NoError(t, err)

	require.NoError(t, conn.Exec("UPDATE companies SET credit_balance = 99 WHERE id = ?", companyID).Error)

	check, err := svc.VerifyBalance(ctx, companyID)
	require.NoError(t, err)
	assert.False(t, check.Consistent)
	assert.Equal(t, int64(5), check.LedgerBalance)
}
