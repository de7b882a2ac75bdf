package payments

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/db/models"
	"github.com/qrseal/qrseal-backend/pkg/enums"
)

func testPricer(charges string) Pricer {
	return NewPricer(config.PaymentsConfig{
		Currency:          "inr",
		UnitPrice:         "5",
		GSTPercent:        "18",
		AdditionalCharges: charges,
	})
}

func TestPricer_TopupWithGST(t *testing.T) {
	p := testPricer("0")
	got := p.Price(100, p.TopupBase(100), nil)

	if got.BaseAmount.StringFixed(2) != "500.00" {
		t.Fatalf("base = %s", got.BaseAmount.StringFixed(2))
	}
	if got.GSTAmount.StringFixed(2) != "90.00" {
		t.Fatalf("gst = %s", got.GSTAmount.StringFixed(2))
	}
	if got.FinalAmount.StringFixed(2) != "590.00" {
		t.Fatalf("final = %s", got.FinalAmount.StringFixed(2))
	}
	if got.Credits != 100 {
		t.Fatalf("credits = %d", got.Credits)
	}
}

func TestPricer_CouponsAndCharges(t *testing.T) {
	cases := []struct {
		name     string
		coupon   *models.Coupon
		charges  string
		discount string
		gst      string
		final    string
	}{
		{
			name:     "percent coupon reduces taxable base",
			coupon:   &models.Coupon{Code: "TEN", DiscountType: enums.CouponDiscountPercent, Value: decimal.NewFromInt(10)},
			charges:  "0",
			discount: "50.00",
			gst:      "81.00",
			final:    "531.00",
		},
		{
			name:     "flat coupon capped at base",
			coupon:   &models.Coupon{Code: "ALL", DiscountType: enums.CouponDiscountFlat, Value: decimal.NewFromInt(900)},
			charges:  "25",
			discount: "500.00",
			gst:      "0.00",
			final:    "25.00",
		},
		{
			name:     "charges are not taxed",
			charges:  "10.5",
			discount: "0.00",
			gst:      "90.00",
			final:    "600.50",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testPricer(tc.charges)
			got := p.Price(100, p.TopupBase(100), tc.coupon)
			if got.CouponDiscount.StringFixed(2) != tc.discount {
				t.Fatalf("discount = %s, want %s", got.CouponDiscount.StringFixed(2), tc.discount)
			}
			if got.GSTAmount.StringFixed(2) != tc.gst {
				t.Fatalf("gst = %s, want %s", got.GSTAmount.StringFixed(2), tc.gst)
			}
			if got.FinalAmount.StringFixed(2) != tc.final {
				t.Fatalf("final = %s, want %s", got.FinalAmount.StringFixed(2), tc.final)
			}
		})
	}
}

func TestPricer_RoundsGSTToPaise(t *testing.T) {
	p := NewPricer(config.PaymentsConfig{UnitPrice: "0.33", GSTPercent: "18", AdditionalCharges: "0"})
	got := p.Price(7, p.TopupBase(7), nil)
	// 7 × 0.33 = 2.31; 18% = 0.4158
	if got.GSTAmount.StringFixed(2) != "0.42" {
		t.Fatalf("gst = %s", got.GSTAmount.StringFixed(2))
	}
	if got.FinalAmount.StringFixed(2) != "2.73" {
		t.Fatalf("final = %s", got.FinalAmount.StringFixed(2))
	}
}

func TestPricer_TopUpCost(t *testing.T) {
	p := testPricer("0")
	if got := p.TopUpCost(10); got != "59.00" {
		t.Fatalf("TopUpCost(10) = %s", got)
	}
	if got := p.TopUpCost(0); got != "0.00" {
		t.Fatalf("TopUpCost(0) = %s", got)
	}
}
