package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/internal/ledger"
	"github.com/qrseal/qrseal-backend/internal/notifications"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type creditLedger interface {
	SpendTx(ctx context.Context, tx *gorm.DB, input ledger.SpendInput) (*models.CreditTransaction, error)
	GrantTx(ctx context.Context, tx *gorm.DB, input ledger.GrantInput) (*models.CreditTransaction, error)
}

type brandResolver interface {
	Resolve(ctx context.Context, companyID uuid.UUID, brandID *uuid.UUID) (*models.Brand, error)
	Get(ctx context.Context, brandID uuid.UUID) (*models.Brand, error)
}

type qrIssuer interface {
	MintTx(ctx context.Context, tx *gorm.DB, order *models.Order, brand *models.Brand) ([]models.Product, error)
	ActivateTx(ctx context.Context, tx *gorm.DB, order *models.Order, at time.Time) (int64, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, event notifications.Event)
}
