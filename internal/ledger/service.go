package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
	pkgerrors "github.com/qrseal/qrseal-backend/pkg/errors"
	"github.com/qrseal/qrseal-backend/pkg/logger"
	"github.com/qrseal/qrseal-backend/pkg/metrics"
	"github.com/qrseal/qrseal-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of company credit balances.
type Service interface {
	Grant(ctx context.Context, input GrantInput) (*models.CreditTransaction, error)
	GrantTx(ctx context.Context, tx *gorm.DB, input GrantInput) (*models.CreditTransaction, error)
	Spend(ctx context.Context, input SpendInput) (*models.CreditTransaction, error)
	SpendTx(ctx context.Context, tx *gorm.DB, input SpendInput) (*models.CreditTransaction, error)
	Balance(ctx context.Context, companyID uuid.UUID) (int, error)
	ListTransactions(ctx context.Context, companyID uuid.UUID, params pagination.Params) (*TransactionList, error)
	VerifyBalance(ctx context.Context, companyID uuid.UUID) (*Verification, error)
}

// GrantInput adds credits to a company.
type GrantInput struct {
	CompanyID   uuid.UUID
	Amount      int
	Type        enums.CreditTransactionType
	Note        *string
	OrderID     *uuid.UUID
	PaymentID   *uuid.UUID
	PerformedBy *uuid.UUID
}

// SpendInput deducts credits for an order.
type SpendInput struct {
	CompanyID   uuid.UUID
	Amount      int
	OrderID     uuid.UUID
	PerformedBy *uuid.UUID
	Note        *string
}

// InsufficientCredits is attached as details to INSUFFICIENT_CREDITS errors.
type InsufficientCredits struct {
	InsufficientCredits bool   `json:"insufficientCredits"`
	Required            int    `json:"required"`
	Available           int    `json:"available"`
	Shortfall           int    `json:"shortfall"`
	TopUpCost           string `json:"topUpCost,omitempty"`
}

// TransactionList is one page of ledger entries, newest first.
type TransactionList = pagination.Page[models.CreditTransaction]

// Verification compares the stored balance with a replay of the log.
type Verification struct {
	CompanyID        uuid.UUID `json:"companyId"`
	StoredBalance    int       `json:"storedBalance"`
	LedgerBalance    int64     `json:"ledgerBalance"`
	TransactionCount int64     `json:"transactionCount"`
	Consistent       bool      `json:"consistent"`
}

// ShortfallQuote prices a top-up covering the missing credits.
type ShortfallQuote func(credits int) string

type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Logger     *logger.Logger
	Quote      ShortfallQuote
}

type service struct {
	repo  Repository
	tx    txRunner
	logg  *logger.Logger
	quote ShortfallQuote
}

// NewService wires a ledger service with the provided repository.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:  params.Repository,
		tx:    params.Tx,
		logg:  params.Logger,
		quote: params.Quote,
	}, nil
}

func (s *service) Grant(ctx context.Context, input GrantInput) (*models.CreditTransaction, error) {
	var entry *models.CreditTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.GrantTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) GrantTx(ctx context.Context, tx *gorm.DB, input GrantInput) (*models.CreditTransaction, error) {
	if input.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Type.IsGrant() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid grant type %q", input.Type))
	}

	repo := s.repo.WithTx(tx)
	balance, err := repo.Increment(ctx, input.CompanyID, input.Amount)
	if err != nil {
		return nil, mapRepoErr(err, "increment credit balance")
	}

	entry := &models.CreditTransaction{
		ID:           uuid.New(),
		CompanyID:    input.CompanyID,
		Type:         input.Type,
		Amount:       input.Amount,
		BalanceAfter: balance,
		OrderID:      input.OrderID,
		PaymentID:    input.PaymentID,
		PerformedBy:  input.PerformedBy,
		Note:         input.Note,
	}
	if err := repo.CreateTransaction(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record credit transaction")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithCompanyID(ctx, input.CompanyID.String()), map[string]any{
			"credit_type":   input.Type,
			"amount":        input.Amount,
			"balance_after": balance,
		})
		s.logg.Info(logCtx, "credits granted")
	}
	return entry, nil
}

func (s *service) Spend(ctx context.Context, input SpendInput) (*models.CreditTransaction, error) {
	var entry *models.CreditTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.SpendTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) SpendTx(ctx context.Context, tx *gorm.DB, input SpendInput) (*models.CreditTransaction, error) {
	if input.CompanyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	repo := s.repo.WithTx(tx)
	balance, ok, err := repo.DecrementIfSufficient(ctx, input.CompanyID, input.Amount)
	if err != nil {
		return nil, mapRepoErr(err, "decrement credit balance")
	}
	if !ok {
		metrics.ObserveCreditSpend(metrics.OutcomeRejected)
		return nil, s.insufficient(input.Amount, balance)
	}

	orderID := input.OrderID
	entry := &models.CreditTransaction{
		ID:           uuid.New(),
		CompanyID:    input.CompanyID,
		Type:         enums.CreditTransactionSpend,
		Amount:       -input.Amount,
		BalanceAfter: balance,
		OrderID:      &orderID,
		PerformedBy:  input.PerformedBy,
		Note:         input.Note,
	}
	if err := repo.CreateTransaction(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record credit transaction")
	}
	metrics.ObserveCreditSpend(metrics.OutcomeSuccess)
	return entry, nil
}

func (s *service) insufficient(required, available int) error {
	details := InsufficientCredits{
		InsufficientCredits: true,
		Required:            required,
		Available:           available,
		Shortfall:           required - available,
	}
	if s.quote != nil {
		details.TopUpCost = s.quote(details.Shortfall)
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits").WithDetails(details)
}

func (s *service) Balance(ctx context.Context, companyID uuid.UUID) (int, error) {
	if companyID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	balance, err := s.repo.Balance(ctx, companyID)
	if err != nil {
		return 0, mapRepoErr(err, "load credit balance")
	}
	return balance, nil
}

func (s *service) ListTransactions(ctx context.Context, companyID uuid.UUID, params pagination.Params) (*TransactionList, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListTransactions(ctx, companyID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list credit transactions")
	}
	page := pagination.Trim(rows, params.Limit, func(row models.CreditTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &page, nil
}

func (s *service) VerifyBalance(ctx context.Context, companyID uuid.UUID) (*Verification, error) {
	if companyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "company id required")
	}
	var out Verification
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stored, err := repo.Balance(ctx, companyID)
		if err != nil {
			return mapRepoErr(err, "load credit balance")
		}
		total, count, err := repo.SumTransactions(ctx, companyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum credit transactions")
		}
		out = Verification{
			CompanyID:        companyID,
			StoredBalance:    stored,
			LedgerBalance:    total,
			TransactionCount: count,
			Consistent:       int64(stored) == total,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Consistent && s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithCompanyID(ctx, companyID.String()), map[string]any{
			"stored_balance": out.StoredBalance,
			"ledger_balance": out.LedgerBalance,
		})
		s.logg.Warn(logCtx, "credit balance does not match ledger replay")
	}
	return &out, nil
}

func mapRepoErr(err error, msg string) error {
	if errors.Is(err, ErrCompanyNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "company not found")
	}
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
