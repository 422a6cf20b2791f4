package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitrine-field/api/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// IsPromotionActive reports whether the promotion is enabled and now lies inside its window.
// Both bounds are inclusive. A promotion with a missing start or end date is never active.
func IsPromotionActive(promo domain.Promotion, now time.Time) bool {
	if !promo.IsActive {
		return false
	}
	if promo.StartDate.IsZero() || promo.EndDate.IsZero() {
		return false
	}
	return !now.Before(promo.StartDate) && !now.After(promo.EndDate)
}

// ApplyDiscount returns the price after applying a discount of the given type. Results are
// floored at zero. Unknown discount types leave the price unchanged.
func ApplyDiscount(original decimal.Decimal, discountType domain.DiscountType, value decimal.Decimal) decimal.Decimal {
	price, _ := applyDiscount(original, discountType, value)
	return price
}

func applyDiscount(original decimal.Decimal, discountType domain.DiscountType, value decimal.Decimal) (decimal.Decimal, bool) {
	var price decimal.Decimal
	switch discountType {
	case domain.DiscountTypePercentage:
		price = original.Mul(hundred.Sub(value)).Div(hundred)
	case domain.DiscountTypeFixedAmount:
		price = original.Sub(value)
	default:
		return original, false
	}
	if price.IsNegative() {
		return decimal.Zero, true
	}
	return price, true
}

// FinalPrice returns the price a customer pays given the resolved promotion, or original when none applies.
func FinalPrice(original decimal.Decimal, promo *domain.PromotionWithPriority) decimal.Decimal {
	if promo == nil {
		return original
	}
	return promo.PromotionalPrice
}
