package services

import (
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestCalculatePromoDiscount(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		promo    PromoDescriptor
		want     string
	}{
		{name: "flat", subtotal: "100", promo: PromoDescriptor{Type: domain.DiscountTypeFlat, Amount: dec("15")}, want: "15"},
		{name: "percentage", subtotal: "80", promo: PromoDescriptor{Type: domain.DiscountTypePercentage, Percent: dec("12.5")}, want: "10"},
		{name: "both", subtotal: "100", promo: PromoDescriptor{Type: domain.DiscountTypeBoth, Amount: dec("10"), Percent: dec("20")}, want: "30"},
		{name: "both below subtotal", subtotal: "20", promo: PromoDescriptor{Type: domain.DiscountTypeBoth, Amount: dec("10"), Percent: dec("20")}, want: "14"},
		{name: "both capped at subtotal", subtotal: "20", promo: PromoDescriptor{Type: domain.DiscountTypeBoth, Amount: dec("10"), Percent: dec("60")}, want: "20"},
		{name: "flat capped at subtotal", subtotal: "4.99", promo: PromoDescriptor{Type: domain.DiscountTypeFlat, Amount: dec("5")}, want: "4.99"},
		{name: "none", subtotal: "100", promo: PromoDescriptor{Type: domain.DiscountTypeNone, Amount: dec("10")}, want: "0"},
		{name: "absent type", subtotal: "100", promo: PromoDescriptor{}, want: "0"},
		{name: "half up rounding", subtotal: "10.05", promo: PromoDescriptor{Type: domain.DiscountTypePercentage, Percent: dec("50")}, want: "5.03"},
		{name: "third", subtotal: "33.33", promo: PromoDescriptor{Type: domain.DiscountTypePercentage, Percent: dec("10")}, want: "3.33"},
		{name: "zero subtotal", subtotal: "0", promo: PromoDescriptor{Type: domain.DiscountTypeFlat, Amount: dec("5")}, want: "0"},
		{name: "negative amount", subtotal: "50", promo: PromoDescriptor{Type: domain.DiscountTypeFlat, Amount: dec("-5")}, want: "0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculatePromoDiscount(dec(tc.subtotal), tc.promo)
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestEstimateTotals_EstimateMatchesMaterialized(t *testing.T) {
	promo := domain.PromoCode{ID: "promo_1", DiscountType: domain.DiscountTypeBoth, DiscountAmount: dec("2.5"), DiscountPercent: dec("7")}
	order := domain.Order{Items: []domain.OrderItem{
		{Quantity: 3, Price: dec("19.99")},
		{Quantity: 1, Price: dec("4.35")},
	}}

	estimate := EstimateTotals(order, &promo)
	if !estimate.PromoEstimated {
		t.Fatalf("expected estimate flag")
	}

	materialized := CalculatePromoDiscount(order.Subtotal(), DescriptorFor(promo))
	order.PromoDiscount = &materialized

	final := EstimateTotals(order, &promo)
	if final.PromoEstimated {
		t.Fatalf("materialized discount must not be reported as estimate")
	}
	if !final.PromoDiscount.Equal(estimate.PromoDiscount) || !final.Total.Equal(estimate.Total) {
		t.Fatalf("estimate %s/%s drifted from final %s/%s", estimate.PromoDiscount, estimate.Total, final.PromoDiscount, final.Total)
	}
}

func TestEstimateTotals_FloorsTotalButKeepsDiscountsIndependent(t *testing.T) {
	admin := dec("90")
	promoDiscount := dec("20")
	order := domain.Order{
		AdminDiscount: &admin,
		PromoDiscount: &promoDiscount,
		Items:         []domain.OrderItem{{Quantity: 1, Price: dec("100")}},
	}

	totals := EstimateTotals(order, nil)
	if !totals.Total.IsZero() {
		t.Fatalf("expected total floored at zero, got %s", totals.Total)
	}
	if !totals.PromoDiscount.Equal(promoDiscount) || !totals.AdminDiscount.Equal(admin) {
		t.Fatalf("discounts must be reported unclamped, got admin=%s promo=%s", totals.AdminDiscount, totals.PromoDiscount)
	}
}
