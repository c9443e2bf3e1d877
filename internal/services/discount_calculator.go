package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// PromoDescriptor is the part of a promo code that determines its discount.
type PromoDescriptor struct {
	Type    domain.DiscountType
	Amount  decimal.Decimal
	Percent decimal.Decimal
}

// DescriptorFor extracts the discount descriptor of a promo code.
func DescriptorFor(promo domain.PromoCode) PromoDescriptor {
	return PromoDescriptor{
		Type:    promo.DiscountType,
		Amount:  promo.DiscountAmount,
		Percent: promo.DiscountPercent,
	}
}

// OrderTotals is the priced view of an order.
type OrderTotals struct {
	Subtotal      decimal.Decimal
	AdminDiscount decimal.Decimal
	PromoDiscount decimal.Decimal
	// PromoEstimated is true when PromoDiscount was computed from the live promo rather than read from the order.
	PromoEstimated bool
	Total          decimal.Decimal
}

// CalculatePromoDiscount returns the promo discount for subtotal, capped at the subtotal and rounded half-up to cents.
// Both estimation and materialization go through this function.
func CalculatePromoDiscount(subtotal decimal.Decimal, promo PromoDescriptor) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch promo.Type {
	case domain.DiscountTypeFlat:
		discount = promo.Amount
	case domain.DiscountTypePercentage:
		discount = percentOf(subtotal, promo.Percent)
	case domain.DiscountTypeBoth:
		discount = promo.Amount.Add(percentOf(subtotal, promo.Percent))
	default:
		return decimal.Zero
	}

	discount = discount.Round(moneyPlaces)
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}

// FinalTotal subtracts both discounts from the subtotal. The result is floored at zero.
func FinalTotal(subtotal, adminDiscount, promoDiscount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(adminDiscount).Sub(promoDiscount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// EstimateTotals prices the order. A materialized promo discount wins; otherwise the live promo, when given,
// yields an estimate that is not persisted.
func EstimateTotals(order domain.Order, promo *domain.PromoCode) OrderTotals {
	totals := OrderTotals{Subtotal: order.Subtotal()}
	if order.AdminDiscount != nil {
		totals.AdminDiscount = *order.AdminDiscount
	}

	switch {
	case order.PromoDiscount != nil:
		totals.PromoDiscount = *order.PromoDiscount
	case promo != nil:
		totals.PromoDiscount = CalculatePromoDiscount(totals.Subtotal, DescriptorFor(*promo))
		totals.PromoEstimated = true
	}

	totals.Total = FinalTotal(totals.Subtotal, totals.AdminDiscount, totals.PromoDiscount)
	return totals
}

func percentOf(value, percent decimal.Decimal) decimal.Decimal {
	return value.Mul(percent).Div(hundred)
}

// wholeCents reports whether amount fits in the two decimal places every store keeps.
func wholeCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(moneyPlaces))
}
