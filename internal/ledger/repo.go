package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/pagination"
)

// ErrCompanyNotFound is returned when the balance row does not exist.
var ErrCompanyNotFound = errors.New("company not found")

// Repository owns every write to companies.credit_balance and credit_transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Increment(ctx context.Context, companyID uuid.UUID, amount int) (int, error)
	DecrementIfSufficient(ctx context.Context, companyID uuid.UUID, amount int) (int, bool, error)
	Balance(ctx context.Context, companyID uuid.UUID) (int, error)
	CreateTransaction(ctx context.Context, entry *models.CreditTransaction) error
	ListTransactions(ctx context.Context, companyID uuid.UUID, params pagination.Params) ([]models.CreditTransaction, error)
	SumTransactions(ctx context.Context, companyID uuid.UUID) (int64, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Increment adds amount to the balance and returns the new value. The UPDATE takes
// the row lock, so the read-back sees this transaction's write.
func (r *repository) Increment(ctx context.Context, companyID uuid.UUID, amount int) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("id = ?", companyID).
		Updates(map[string]any{
			"credit_balance": gorm.Expr("credit_balance + ?", amount),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrCompanyNotFound
	}
	return r.Balance(ctx, companyID)
}

// DecrementIfSufficient subtracts amount only when the balance covers it. The second
// return value is false when the balance was too low; the first is then the current balance.
func (r *repository) DecrementIfSufficient(ctx context.Context, companyID uuid.UUID, amount int) (int, bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Company{}).
		Where("id = ? AND credit_balance >= ?", companyID, amount).
		Updates(map[string]any{
			"credit_balance": gorm.Expr("credit_balance - ?", amount),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, false, res.Error
	}
	balance, err := r.Balance(ctx, companyID)
	if err != nil {
		return 0, false, err
	}
	return balance, res.RowsAffected > 0, nil
}

func (r *repository) Balance(ctx context.Context, companyID uuid.UUID) (int, error) {
	var company models.Company
	err := r.db.WithContext(ctx).
		Select("id", "credit_balance").
		Where("id = ?", companyID).
		First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrCompanyNotFound
	}
	if err != nil {
		return 0, err
	}
	return company.CreditBalance, nil
}

func (r *repository) CreateTransaction(ctx context.Context, entry *models.CreditTransaction) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListTransactions(ctx context.Context, companyID uuid.UUID, params pagination.Params) ([]models.CreditTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("company_id = ?", companyID)

	var rows []models.CreditTransaction
	if err := query.Scopes(pagination.Keyset(params)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SumTransactions returns the signed sum of all entries and their count.
func (r *repository) SumTransactions(ctx context.Context, companyID uuid.UUID) (int64, int64, error) {
	var result struct {
		Total int64
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("company_id = ?", companyID).
		Scan(&result).Error
	return result.Total, result.Count, err
}
