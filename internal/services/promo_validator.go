package services

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	domain "github.com/Abdullah97825/Matjary-sub000/internal/domain"
	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

// PromoValidation is the verdict of the promo validation contract.
type PromoValidation struct {
	Valid      bool
	Message    string
	Promo      domain.PromoCode
	Assignment *domain.PromoAssignment
}

// PromoValidator checks whether a promo code may be redeemed by a user for an order total.
// It reads through the supplied gateway so callers decide whether the reads are transactional.
type PromoValidator interface {
	Validate(ctx context.Context, promos repositories.PromoCodeGateway, code, userID string, orderTotal decimal.Decimal) (PromoValidation, error)
}

type promoValidator struct {
	clock func() time.Time
}

// NewPromoValidator returns the default validator covering activity, expiry, usage ceiling, minimum order
// amount, exclusion lists, exclusive assignments and prior redemption.
func NewPromoValidator(clock func() time.Time) PromoValidator {
	if clock == nil {
		clock = time.Now
	}
	return &promoValidator{clock: clock}
}

// NormalizePromoCode folds width variants, trims and upper-cases a user supplied code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(code)))
}

func (v *promoValidator) Validate(ctx context.Context, promos repositories.PromoCodeGateway, code, userID string, orderTotal decimal.Decimal) (PromoValidation, error) {
	code = NormalizePromoCode(code)
	if code == "" {
		return rejectPromo(domain.PromoCode{}, "promo code is required"), nil
	}

	promo, err := promos.FindByCode(ctx, code)
	if err != nil {
		if repositories.IsNotFound(err) {
			return rejectPromo(domain.PromoCode{Code: code}, "promo code does not exist"), nil
		}
		return PromoValidation{}, mapRepositoryError(err)
	}

	now := v.clock()
	switch {
	case !promo.IsActive:
		return rejectPromo(promo, "promo code is not active"), nil
	case promo.ExpiresAt != nil && !now.Before(*promo.ExpiresAt):
		return rejectPromo(promo, "promo code expired on "+promo.ExpiresAt.UTC().Format(time.DateOnly)), nil
	case promo.MaxUses != nil && promo.UsedCount >= *promo.MaxUses:
		return rejectPromo(promo, "promo code usage limit reached"), nil
	case promo.MinOrderAmount != nil && orderTotal.LessThan(*promo.MinOrderAmount):
		return rejectPromo(promo, "order total "+orderTotal.StringFixed(2)+" is below the minimum of "+promo.MinOrderAmount.StringFixed(2)), nil
	case promo.Excludes(userID):
		return rejectPromo(promo, "promo code is not available for this account"), nil
	}

	var assignment *domain.PromoAssignment
	found, err := promos.FindUserAssignment(ctx, userID, promo.ID)
	switch {
	case err == nil:
		assignment = &found
	case repositories.IsNotFound(err):
	default:
		return PromoValidation{}, mapRepositoryError(err)
	}

	if promo.Exclusive && assignment == nil {
		return rejectPromo(promo, "promo code is reserved for selected customers"), nil
	}
	if assignment != nil && assignment.Used {
		return rejectPromo(promo, "promo code has already been used"), nil
	}

	return PromoValidation{Valid: true, Promo: promo, Assignment: assignment}, nil
}

func rejectPromo(promo domain.PromoCode, message string) PromoValidation {
	return PromoValidation{Valid: false, Message: message, Promo: promo}
}
