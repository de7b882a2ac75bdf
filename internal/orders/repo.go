package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/db"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/pagination"
)

// ErrNotFound is returned when the order does not exist.
var ErrNotFound = errors.New("order not found")

// Repository defines persistence for orders and their history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindWithHistory(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	AppendHistory(ctx context.Context, entry *models.OrderHistoryEntry) error
	List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Order, error)
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

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("History").Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx), id)
}

// FindForUpdate loads the order holding its row lock until the transaction ends.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.first(db.ForUpdate(r.db.WithContext(ctx)), id)
}

func (r *repository) FindWithHistory(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := r.db.WithContext(ctx).Preload("History", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	})
	return r.first(query, id)
}

func (r *repository) first(query *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := query.Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AppendHistory stores the next entry of the order's history. Callers hold the order
// row lock, so positions cannot race.
func (r *repository) AppendHistory(ctx context.Context, entry *models.OrderHistoryEntry) error {
	var last int
	if err := r.db.WithContext(ctx).
		Model(&models.OrderHistoryEntry{}).
		Select("COALESCE(MAX(position), 0)").
		Where("order_id = ?", entry.OrderID).
		Scan(&last).Error; err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.Position = last + 1
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters ListFilters) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.CompanyID != nil {
		query = query.Where("company_id = ?", *filters.CompanyID)
	}
	if filters.BrandID != nil {
		query = query.Where("brand_id = ?", *filters.BrandID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	var rows []models.Order
	if err := query.Scopes(pagination.Keyset(params)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
