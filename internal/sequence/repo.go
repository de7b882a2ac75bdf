package sequence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
)

// Repository persists the per-brand counter row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Advance(ctx context.Context, brandID uuid.UUID, count int) (bool, error)
	Current(ctx context.Context, brandID uuid.UUID) (int64, error)
	Seed(ctx context.Context, brandID uuid.UUID) error
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

// Advance bumps last_value by count. It reports false when the brand has no counter row yet.
func (r *repository) Advance(ctx context.Context, brandID uuid.UUID, count int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.BrandSequence{}).
		Where("brand_id = ?", brandID).
		Updates(map[string]any{
			"last_value": gorm.Expr("last_value + ?", count),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Current(ctx context.Context, brandID uuid.UUID) (int64, error) {
	var row models.BrandSequence
	if err := r.db.WithContext(ctx).
		Where("brand_id = ?", brandID).
		First(&row).Error; err != nil {
		return 0, err
	}
	return row.LastValue, nil
}

// Seed creates the counter row starting after the highest sequence already minted
// for the brand. Concurrent seeders race on the primary key; losers do nothing.
func (r *repository) Seed(ctx context.Context, brandID uuid.UUID) error {
	var maxSeq int64
	if err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("brand_id = ?", brandID).
		Scan(&maxSeq).Error; err != nil {
		return err
	}
	row := models.BrandSequence{BrandID: brandID, LastValue: maxSeq, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}
