package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vitrine-field/api/internal/domain"
)

func TestIsPromotionActiveWindow(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	promo := domain.Promotion{IsActive: true, StartDate: start, EndDate: end}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "before start", now: start.Add(-time.Second), want: false},
		{name: "at start", now: start, want: true},
		{name: "inside", now: start.Add(72 * time.Hour), want: true},
		{name: "at end", now: end, want: true},
		{name: "after end", now: end.Add(time.Second), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsPromotionActive(promo, tc.now))
		})
	}
}

func TestIsPromotionActiveRequiresFlagAndDates(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	base := domain.Promotion{IsActive: true, StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}

	disabled := base
	disabled.IsActive = false
	assert.False(t, IsPromotionActive(disabled, now))

	noStart := base
	noStart.StartDate = time.Time{}
	assert.False(t, IsPromotionActive(noStart, now))

	noEnd := base
	noEnd.EndDate = time.Time{}
	assert.False(t, IsPromotionActive(noEnd, now))

	assert.True(t, IsPromotionActive(base, now))
}

func TestApplyDiscount(t *testing.T) {
	cases := []struct {
		name         string
		original     string
		discountType domain.DiscountType
		value        string
		want         string
	}{
		{name: "percentage", original: "200", discountType: domain.DiscountTypePercentage, value: "10", want: "180"},
		{name: "percentage fractional", original: "99.99", discountType: domain.DiscountTypePercentage, value: "15", want: "84.9915"},
		{name: "percentage full", original: "50", discountType: domain.DiscountTypePercentage, value: "100", want: "0"},
		{name: "fixed", original: "100", discountType: domain.DiscountTypeFixedAmount, value: "15.5", want: "84.5"},
		{name: "fixed floors at zero", original: "50", discountType: domain.DiscountTypeFixedAmount, value: "80", want: "0"},
		{name: "unknown type", original: "42", discountType: domain.DiscountType("buy_one_get_one"), value: "10", want: "42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyDiscount(dec(tc.original), tc.discountType, dec(tc.value))
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestFinalPrice(t *testing.T) {
	assert.Equal(t, "10", FinalPrice(dec("10"), nil).String())
	promo := &domain.PromotionWithPriority{PromotionalPrice: dec("7.5")}
	assert.Equal(t, "7.5", FinalPrice(dec("10"), promo).String())
}
