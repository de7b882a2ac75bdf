package enums

// CouponDiscountType selects how a coupon value is applied to the base amount.
type CouponDiscountType string

const (
	CouponDiscountPercent CouponDiscountType = "percent"
	CouponDiscountFlat    CouponDiscountType = "flat"
)

var couponDiscountTypes = newValueSet("coupon discount type", CouponDiscountPercent, CouponDiscountFlat)

func (c CouponDiscountType) IsValid() bool { return couponDiscountTypes.has(c) }
