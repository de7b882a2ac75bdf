package products

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
)

const insertBatchSize = 500

// ErrNotFound is returned when no product carries the requested code.
var ErrNotFound = errors.New("product not found")

// Repository persists minted QR units.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBatch(ctx context.Context, rows []models.Product) error
	ActivateByOrder(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error)
	CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	FindByCode(ctx context.Context, code string) (*models.Product, error)
	IncrementScan(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// products starts a query on the products table bound to ctx.
func (r *repository) products(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Product{})
}

func ofOrder(orderID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB { return q.Where("order_id = ?", orderID) }
}

func (r *repository) CreateBatch(ctx context.Context, rows []models.Product) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, insertBatchSize).Error
}

// ActivateByOrder flips every still-inactive unit of the order and reports
// how many changed.
func (r *repository) ActivateByOrder(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error) {
	res := r.products(ctx).
		Scopes(ofOrder(orderID)).
		Where("is_active = ?", false).
		Updates(map[string]any{"is_active": true, "activated_at": at})
	return res.RowsAffected, res.Error
}

func (r *repository) CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	return n, r.products(ctx).Scopes(ofOrder(orderID)).Count(&n).Error
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Product, error) {
	var product models.Product
	switch err := r.db.WithContext(ctx).Take(&product, "qr_code = ?", code).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &product, nil
}

func (r *repository) IncrementScan(ctx context.Context, id uuid.UUID) error {
	return r.products(ctx).
		Where("id = ?", id).
		UpdateColumn("scan_count", gorm.Expr("scan_count + 1")).Error
}
