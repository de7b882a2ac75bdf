package enums

// CreditTransactionType maps to the credit_transaction_type enum in Postgres.
type CreditTransactionType string

const (
	CreditTransactionPurchasePlan  CreditTransactionType = "purchase_plan"
	CreditTransactionPurchaseTopup CreditTransactionType = "purchase_topup"
	CreditTransactionSpend         CreditTransactionType = "spend"
	CreditTransactionRefund        CreditTransactionType = "refund"
	CreditTransactionAdminGrant    CreditTransactionType = "admin_grant"
)

var creditTransactionTypes = newValueSet("credit transaction type",
	CreditTransactionPurchasePlan,
	CreditTransactionPurchaseTopup,
	CreditTransactionSpend,
	CreditTransactionRefund,
	CreditTransactionAdminGrant,
)

func (t CreditTransactionType) String() string { return string(t) }

func (t CreditTransactionType) IsValid() bool { return creditTransactionTypes.has(t) }

// IsGrant reports whether the type increases a balance. Only spends debit.
func (t CreditTransactionType) IsGrant() bool {
	return t.IsValid() && t != CreditTransactionSpend
}
