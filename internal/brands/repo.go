package brands

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
)

// ErrNotFound is returned when a brand row does not exist.
var ErrNotFound = errors.New("brand not found")

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Brand, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.Brand, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Brand, error) {
	var brand models.Brand
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&brand).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &brand, nil
}

func (r *repository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]models.Brand, error) {
	var brands []models.Brand
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at ASC").
		Find(&brands).Error; err != nil {
		return nil, err
	}
	return brands, nil
}
