package products

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/internal/brands"
	"github.com/qrseal/qrseal-backend/internal/sequence"
	"github.com/qrseal/qrseal-backend/pkg/db/dbtest"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
)

type fixture struct {
	conn   *gorm.DB
	repo   Repository
	issuer *Issuer
	brand  models.Brand
	order  models.Order
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	alloc, err := sequence.NewAllocator(sequence.NewRepository(conn), client)
	require.NoError(t, err)
	repo := NewRepository(conn)
	issuer, err := NewIssuer(repo, alloc)
	require.NoError(t, err)

	companyID := uuid.New()
	brand := models.Brand{ID: uuid.New(), CompanyID: companyID, Name: "Acme"}
	require.NoError(t, conn.Create(&brand).Error)
	order := models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-TEST1",
		CompanyID:   companyID,
		BrandID:     brand.ID,
		ProductName: "Green tea",
		Quantity:    3,
		Status:      enums.OrderStatusOrderProcessing,
		CreatedBy:   uuid.New(),
	}
	require.NoError(t, conn.Create(&order).Error)
	return fixture{conn: conn, repo: repo, issuer: issuer, brand: brand, order: order}
}

func TestIssuer_MintsInactiveSequentialCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var rows []models.Product
	err := f.conn.Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = f.issuer.MintTx(ctx, tx, &f.order, &f.brand)
		return err
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for i, row := range rows {
		assert.Equal(t, int64(i+1), row.Sequence)
		assert.False(t, row.IsActive)
		assert.True(t, strings.HasPrefix(row.QRCode, "ACME-00000"), row.QRCode)
		assert.Contains(t, row.QRCode, "-ORD-TEST1-")
	}

	count, err := f.repo.CountByOrder(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestService_VerifyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resolver, err := brands.NewResolver(brands.NewRepository(f.conn))
	require.NoError(t, err)
	svc, err := NewService(f.repo, resolver, nil)
	require.NoError(t, err)

	rows, err := f.issuer.MintTx(ctx, f.conn, &f.order, &f.brand)
	require.NoError(t, err)

	unknown, err := svc.Verify(ctx, "NOPE-000001")
	require.NoError(t, err)
	assert.False(t, unknown.Valid)

	before, err := svc.Verify(ctx, rows[0].QRCode)
	require.NoError(t, err)
	assert.True(t, before.Valid)
	assert.False(t, before.Active)
	assert.Equal(t, "Acme", before.Brand)

	activated, err := f.issuer.ActivateTx(ctx, f.conn, &f.order, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(3), activated)

	after, err := svc.Verify(ctx, rows[0].QRCode)
	require.NoError(t, err)
	assert.True(t, after.Active)
	assert.Equal(t, 1, after.ScanCount)
	assert.Equal(t, int64(1), after.Sequence)
}

func TestIssuer_ActivateRefusesShortMint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.issuer.MintTx(ctx, f.conn, &f.order, &f.brand)
	require.NoError(t, err)
	require.NoError(t, f.conn.Where("order_id = ? AND sequence = ?", f.order.ID, 3).Delete(&models.Product{}).Error)

	_, err = f.issuer.ActivateTx(ctx, f.conn, &f.order, time.Now().UTC())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeInternal), "got %v", err)

	var active int64
	require.NoError(t, f.conn.Model(&models.Product{}).Where("is_active = ?", true).Count(&active).Error)
	assert.Zero(t, active)
}
