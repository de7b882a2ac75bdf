package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/db"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
)

var (
	ErrNotFound        = errors.New("payment not found")
	ErrPlanNotFound    = errors.New("plan not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrCompanyNotFound = errors.New("company not found")
)

// Repository persists payments and reads the catalog rows pricing depends on.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Payment, error)
	FindByMerchantOrderIDForUpdate(ctx context.Context, merchantOrderID string) (*models.Payment, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error)
	FindActivePlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	FindActiveCoupon(ctx context.Context, code string, at time.Time) (*models.Coupon, error)
	FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
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

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx), merchantOrderID)
}

func (r *repository) FindByMerchantOrderIDForUpdate(ctx context.Context, merchantOrderID string) (*models.Payment, error) {
	return r.first(db.ForUpdate(r.db.WithContext(ctx)), merchantOrderID)
}

func (r *repository) first(query *gorm.DB, merchantOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := query.Where("merchant_order_id = ?", merchantOrderID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListPending returns pending payments created before the cutoff, oldest first.
func (r *repository) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PaymentStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindActivePlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindActiveCoupon(ctx context.Context, code string, at time.Time) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("UPPER(code) = ? AND active = ?", strings.ToUpper(strings.TrimSpace(code)), true).
		Where("expires_at IS NULL OR expires_at > ?", at).
		First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) FindCompany(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	var company models.Company
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}
