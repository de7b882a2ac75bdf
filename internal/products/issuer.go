package products

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/internal/sequence"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/metrics"
)

type sequenceAllocator interface {
	AllocateTx(ctx context.Context, tx *gorm.DB, brandID uuid.UUID, count int) (sequence.Range, error)
}

// Issuer mints QR units for orders and activates them once the order is received.
type Issuer struct {
	repo      Repository
	sequences sequenceAllocator
	suffix    func() (string, error)
}

func NewIssuer(repo Repository, sequences sequenceAllocator) (*Issuer, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if sequences == nil {
		return nil, fmt.Errorf("sequence allocator required")
	}
	return &Issuer{repo: repo, sequences: sequences, suffix: sequence.RandomSuffix}, nil
}

// MintTx allocates order.Quantity sequences for brand and inserts one product per sequence.
func (i *Issuer) MintTx(ctx context.Context, tx *gorm.DB, order *models.Order, brand *models.Brand) ([]models.Product, error) {
	if order == nil || brand == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and brand required")
	}
	if order.BrandID != brand.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order brand mismatch")
	}

	r, err := i.sequences.AllocateTx(ctx, tx, brand.ID, order.Quantity)
	if err != nil {
		return nil, err
	}

	slug := sequence.BrandSlug(brand.Name)
	rows := make([]models.Product, 0, r.Len())
	for seq := r.First; seq <= r.Last; seq++ {
		suffix, err := i.suffix()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate qr suffix")
		}
		rows = append(rows, models.Product{
			ID:       uuid.New(),
			QRCode:   sequence.FormatCode(slug, seq, order.OrderNumber, suffix),
			Sequence: seq,
			BrandID:  brand.ID,
			OrderID:  order.ID,
		})
	}

	if err := i.repo.WithTx(tx).CreateBatch(ctx, rows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert qr products")
	}
	metrics.AddQRCodesMinted(len(rows))
	return rows, nil
}

// ActivateTx marks every unit of the order active and returns how many changed.
// It refuses when the minted unit count disagrees with the order quantity.
func (i *Issuer) ActivateTx(ctx context.Context, tx *gorm.DB, order *models.Order, at time.Time) (int64, error) {
	repo := i.repo.WithTx(tx)
	minted, err := repo.CountByOrder(ctx, order.ID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count qr products")
	}
	if minted != int64(order.Quantity) {
		return 0, pkgerrors.Newf(pkgerrors.CodeInternal, "order has %d qr products, expected %d", minted, order.Quantity)
	}
	n, err := repo.ActivateByOrder(ctx, order.ID, at)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate qr products")
	}
	return n, nil
}
