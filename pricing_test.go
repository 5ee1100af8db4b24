package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavanet/billing/discount"
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/tax"
	"github.com/kavanet/billing/types"
)

func TestPricePersistsSnapshot(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)
	ord := seedOrder(t, s, acct)

	totals, err := eng.Price(ctx, ord.ID)
	require.NoError(t, err)

	assert.Equal(t, "600.00", totals.Subtotal.FormatMajor())
	assert.Equal(t, "8.00", totals.ExciseAmount.FormatMajor())
	assert.Equal(t, "97.28", totals.VATAmount.FormatMajor())
	assert.Equal(t, "705.28", totals.Total.FormatMajor())

	stored, err := s.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TotalPrice)
	assert.Equal(t, "705.28", stored.TotalPrice.FormatMajor())

	rows, err := s.ListOrderTaxes(ctx, ord.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, tax.KindExcise, rows[0].Kind)
	assert.Equal(t, tax.KindVAT, rows[1].Kind)
}

func TestPriceAppliesCoupon(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)
	ord := seedOrder(t, s, acct)

	require.NoError(t, s.CreateRule(ctx, &discount.Rule{
		Entity: types.NewEntity(),
		ID:     id.NewCouponID(),
		Code:   "SAVE50",
		Name:   "Fifty off",
		Source: discount.SourceCoupon,
		Type:   discount.TypeFixed,
		Amount: types.MustParse("50"),
		Active: true,
	}))
	ord.CouponCode = "SAVE50"
	require.NoError(t, s.UpdateOrder(ctx, ord))

	totals, err := eng.Price(ctx, ord.ID)
	require.NoError(t, err)

	assert.True(t, totals.CouponApplied)
	assert.Empty(t, totals.CouponReason)
	assert.Equal(t, "550.00", totals.Subtotal.FormatMajor())
	assert.Equal(t, "7.33", totals.ExciseAmount.FormatMajor())
	assert.Equal(t, "646.50", totals.Total.FormatMajor())

	lines, err := s.ListOrderLines(ctx, ord.ID)
	require.NoError(t, err)
	var adjusts int
	for _, l := range lines {
		if l.IsAdjust() {
			adjusts++
			assert.Equal(t, "SAVE50", l.RuleCode)
			assert.Equal(t, "-50.00", l.Amount().FormatMajor())
		}
	}
	assert.Equal(t, 1, adjusts)
}

func TestPriceUnknownCouponIsStructured(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)
	ord := seedOrder(t, s, acct)
	ord.CouponCode = "NOPE"
	require.NoError(t, s.UpdateOrder(ctx, ord))

	totals, err := eng.Price(ctx, ord.ID)
	require.NoError(t, err, "an unknown coupon must not fail pricing")

	assert.False(t, totals.CouponApplied)
	assert.Equal(t, "coupon code not found", totals.CouponReason)
	assert.Equal(t, "705.28", totals.Total.FormatMajor())
}

func TestPriceIsIdempotent(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)
	ord := seedOrder(t, s, acct)

	require.NoError(t, s.CreateRule(ctx, &discount.Rule{
		Entity:  types.NewEntity(),
		ID:      id.NewPromotionID(),
		Code:    "LAUNCH10",
		Name:    "Launch promo",
		Source:  discount.SourcePromotion,
		Type:    discount.TypePercent,
		Percent: types.MustParse("10").Decimal(),
		Scopes:  order.ScopeSet{order.ScopeKit},
		Active:  true,
	}))

	first, err := eng.Price(ctx, ord.ID)
	require.NoError(t, err)
	second, err := eng.Price(ctx, ord.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Total.FormatMajor(), second.Total.FormatMajor())

	lines, err := s.ListOrderLines(ctx, ord.ID)
	require.NoError(t, err)
	var adjusts int
	for _, l := range lines {
		if l.IsAdjust() {
			adjusts++
		}
	}
	assert.Equal(t, 1, adjusts, "repricing must replace, not stack, adjust lines")
}

func TestPriceTaxExempt(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)
	ord := seedOrder(t, s, acct)
	ord.TaxExempt = true
	require.NoError(t, s.UpdateOrder(ctx, ord))

	totals, err := eng.Price(ctx, ord.ID)
	require.NoError(t, err)

	assert.Equal(t, "600.00", totals.Total.FormatMajor())
	assert.True(t, totals.TaxTotal.IsZero())

	rows, err := s.ListOrderTaxes(ctx, ord.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2, "exempt orders still persist one zero row per kind")
	for _, row := range rows {
		assert.True(t, row.Amount.IsZero())
	}
}

func TestPriceNoLines(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)

	ord := &order.Order{
		Entity:    types.NewEntity(),
		ID:        id.NewOrderID(),
		AccountID: acct.ID,
		UserID:    acct.UserID,
	}
	require.NoError(t, s.CreateOrder(ctx, ord))

	_, err := eng.Price(ctx, ord.ID)
	require.Error(t, err)
}
