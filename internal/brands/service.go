package brands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
)

// Resolver finds the brand an order is placed for, scoped to the caller's company.
type Resolver interface {
	Resolve(ctx context.Context, companyID uuid.UUID, brandID *uuid.UUID) (*models.Brand, error)
	Get(ctx context.Context, brandID uuid.UUID) (*models.Brand, error)
}

type resolver struct {
	repo Repository
}

func NewResolver(repo Repository) (Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("brand repository required")
	}
	return &resolver{repo: repo}, nil
}

// Resolve returns the named brand when it belongs to companyID. Without a brand id the
// company's only brand is used; companies with several brands must name one.
func (r *resolver) Resolve(ctx context.Context, companyID uuid.UUID, brandID *uuid.UUID) (*models.Brand, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "company context missing")
	}

	if brandID != nil && *brandID != uuid.Nil {
		brand, err := r.repo.FindByID(ctx, *brandID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load brand")
		}
		// Other tenants' brands are indistinguishable from missing ones.
		if err != nil || brand.CompanyID != companyID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "brand not found for company")
		}
		return brand, nil
	}

	list, err := r.repo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list brands")
	}
	switch len(list) {
	case 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company has no brand")
	case 1:
		return &list[0], nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "brandId required when the company owns several brands")
	}
}

func (r *resolver) Get(ctx context.Context, brandID uuid.UUID) (*models.Brand, error) {
	brand, err := r.repo.FindByID(ctx, brandID)
	if errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "brand not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load brand")
	}
	return brand, nil
}
