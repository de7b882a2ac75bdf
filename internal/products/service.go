package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

type brandLookup interface {
	Get(ctx context.Context, brandID uuid.UUID) (*models.Brand, error)
}

// Verification is the public answer to a consumer scan.
type Verification struct {
	Valid     bool   `json:"valid"`
	Active    bool   `json:"active"`
	Brand     string `json:"brand,omitempty"`
	Sequence  int64  `json:"sequence,omitempty"`
	ScanCount int    `json:"scanCount,omitempty"`
}

// Service answers public scan verification.
type Service interface {
	Verify(ctx context.Context, code string) (*Verification, error)
}

type service struct {
	repo   Repository
	brands brandLookup
	logg   *logger.Logger
}

func NewService(repo Repository, brands brandLookup, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if brands == nil {
		return nil, fmt.Errorf("brand lookup required")
	}
	return &service{repo: repo, brands: brands, logg: logg}, nil
}

// Verify reports whether code was minted by the platform. Unknown codes are a valid
// answer, not an error.
func (s *service) Verify(ctx context.Context, code string) (*Verification, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qr code required")
	}

	product, err := s.repo.FindByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return &Verification{Valid: false}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup qr code")
	}

	brand, err := s.brands.Get(ctx, product.BrandID)
	if err != nil {
		return nil, err
	}

	if product.IsActive {
		if err := s.repo.IncrementScan(ctx, product.ID); err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "product_id", product.ID.String()), "failed to record scan")
			}
		} else {
			product.ScanCount++
		}
	}

	return &Verification{
		Valid:     true,
		Active:    product.IsActive,
		Brand:     brand.Name,
		Sequence:  product.Sequence,
		ScanCount: product.ScanCount,
	}, nil
}
