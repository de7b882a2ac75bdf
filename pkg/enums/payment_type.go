package enums

// PaymentType distinguishes plan purchases from ad-hoc credit top-ups.
type PaymentType string

const (
	PaymentTypePlan  PaymentType = "plan"
	PaymentTypeTopup PaymentType = "topup"
)

var paymentTypes = newValueSet("payment type", PaymentTypePlan, PaymentTypeTopup)

func (p PaymentType) IsValid() bool { return paymentTypes.has(p) }

// CreditTransactionType is the ledger entry recorded when the payment completes.
func (p PaymentType) CreditTransactionType() CreditTransactionType {
	if p == PaymentTypePlan {
		return CreditTransactionPurchasePlan
	}
	return CreditTransactionPurchaseTopup
}

func ParsePaymentType(value string) (PaymentType, error) { return paymentTypes.parse(value) }
