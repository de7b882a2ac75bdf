package payments

import (
	"github.com/shopspring/decimal"

	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Breakdown is the priced view of a purchase. All amounts carry two decimals.
type Breakdown struct {
	Credits           int             `json:"credits"`
	BaseAmount        decimal.Decimal `json:"baseAmount"`
	CouponCode        *string         `json:"couponCode,omitempty"`
	CouponDiscount    decimal.Decimal `json:"couponDiscount"`
	GSTAmount         decimal.Decimal `json:"gstAmount"`
	AdditionalCharges decimal.Decimal `json:"additionalCharges"`
	FinalAmount       decimal.Decimal `json:"finalAmount"`
	Currency          string          `json:"currency"`
}

// Pricer runs the pricing pipeline: base, coupon, GST on the discounted base,
// flat charges, then rounding to two decimals.
type Pricer struct {
	unitPrice  decimal.Decimal
	gstPercent decimal.Decimal
	charges    decimal.Decimal
	currency   string
}

func NewPricer(cfg config.PaymentsConfig) Pricer {
	return Pricer{
		unitPrice:  cfg.UnitPriceDecimal(),
		gstPercent: cfg.GSTPercentDecimal(),
		charges:    cfg.AdditionalChargesDecimal(),
		currency:   cfg.Currency,
	}
}

// TopupBase is quantity × unit price.
func (p Pricer) TopupBase(quantity int) decimal.Decimal {
	return p.unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Price applies the pipeline to base. coupon may be nil.
func (p Pricer) Price(credits int, base decimal.Decimal, coupon *models.Coupon) Breakdown {
	base = base.Round(2)
	discount := decimal.Zero
	var code *string
	if coupon != nil {
		discount = couponDiscount(base, coupon)
		c := coupon.Code
		code = &c
	}
	taxable := base.Sub(discount)
	gst := taxable.Mul(p.gstPercent).Div(hundred).Round(2)
	final := taxable.Add(gst).Add(p.charges).Round(2)

	return Breakdown{
		Credits:           credits,
		BaseAmount:        base,
		CouponCode:        code,
		CouponDiscount:    discount,
		GSTAmount:         gst,
		AdditionalCharges: p.charges.Round(2),
		FinalAmount:       final,
		Currency:          p.currency,
	}
}

// TopUpCost quotes the amount due for a plain top-up of credits.
func (p Pricer) TopUpCost(credits int) string {
	if credits <= 0 {
		return decimal.Zero.StringFixed(2)
	}
	return p.Price(credits, p.TopupBase(credits), nil).FinalAmount.StringFixed(2)
}

func couponDiscount(base decimal.Decimal, coupon *models.Coupon) decimal.Decimal {
	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.CouponDiscountPercent:
		discount = base.Mul(coupon.Value).Div(hundred)
	case enums.CouponDiscountFlat:
		discount = coupon.Value
	default:
		return decimal.Zero
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(base) {
		discount = base
	}
	return discount.Round(2)
}
