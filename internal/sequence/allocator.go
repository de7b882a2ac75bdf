package sequence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Range is an inclusive block of sequence numbers reserved for one caller.
type Range struct {
	First int64
	Last  int64
}

// Len returns the number of sequences in the range.
func (r Range) Len() int {
	if r.Last < r.First {
		return 0
	}
	return int(r.Last - r.First + 1)
}

// Allocator hands out strictly increasing, never reused sequence numbers per brand.
type Allocator interface {
	Next(ctx context.Context, brandID uuid.UUID) (int64, error)
	AllocateTx(ctx context.Context, tx *gorm.DB, brandID uuid.UUID, count int) (Range, error)
}

type allocator struct {
	repo Repository
	tx   txRunner
}

func NewAllocator(repo Repository, tx txRunner) (Allocator, error) {
	if repo == nil {
		return nil, fmt.Errorf("sequence repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &allocator{repo: repo, tx: tx}, nil
}

func (a *allocator) Next(ctx context.Context, brandID uuid.UUID) (int64, error) {
	var seq int64
	err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		r, err := a.AllocateTx(ctx, tx, brandID, 1)
		if err != nil {
			return err
		}
		seq = r.First
		return nil
	})
	return seq, err
}

// AllocateTx reserves count consecutive numbers inside tx. The counter row stays
// locked until tx ends, so a rollback returns the numbers to the brand.
func (a *allocator) AllocateTx(ctx context.Context, tx *gorm.DB, brandID uuid.UUID, count int) (Range, error) {
	if brandID == uuid.Nil {
		return Range{}, pkgerrors.New(pkgerrors.CodeValidation, "brand id required")
	}
	if count <= 0 {
		return Range{}, pkgerrors.New(pkgerrors.CodeValidation, "count must be positive")
	}

	repo := a.repo.WithTx(tx)
	advanced, err := repo.Advance(ctx, brandID, count)
	if err != nil {
		return Range{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance brand sequence")
	}
	if !advanced {
		if err := repo.Seed(ctx, brandID); err != nil {
			return Range{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed brand sequence")
		}
		advanced, err = repo.Advance(ctx, brandID, count)
		if err != nil {
			return Range{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance brand sequence")
		}
		if !advanced {
			return Range{}, pkgerrors.New(pkgerrors.CodeDependency, "brand sequence row missing after seed")
		}
	}

	last, err := repo.Current(ctx, brandID)
	if err != nil {
		return Range{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read brand sequence")
	}
	return Range{First: last - int64(count) + 1, Last: last}, nil
}
