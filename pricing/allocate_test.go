package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavanet/billing/discount"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/tax"
	"github.com/kavanet/billing/types"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testPolicy() tax.Policy {
	return tax.Policy{
		VATPercent:    decimal.NewFromInt(16),
		ExcisePercent: decimal.NewFromInt(10),
	}
}

func line(kind order.LineKind, price string) order.Line {
	return order.Line{
		Kind:      kind,
		Quantity:  1,
		UnitPrice: types.MustParse(price),
	}
}

func basket() []order.Line {
	return []order.Line{
		line(order.KindKit, "400"),
		line(order.KindPlan, "80"),
		line(order.KindInstall, "120"),
	}
}

func fixedRule(code string, amount string, scopes ...order.Scope) Candidate {
	return Candidate{Rule: discount.Rule{
		Code:   code,
		Name:   code,
		Source: discount.SourceCoupon,
		Type:   discount.TypeFixed,
		Amount: types.MustParse(amount),
		Scopes: order.ScopeSet(scopes),
		Active: true,
	}}
}

func percentRule(code string, pct int64, scopes ...order.Scope) Candidate {
	return Candidate{Rule: discount.Rule{
		Code:    code,
		Name:    code,
		Source:  discount.SourcePromotion,
		Type:    discount.TypePercent,
		Percent: decimal.NewFromInt(pct),
		Scopes:  order.ScopeSet(scopes),
		Active:  true,
	}}
}

func TestAllocateSelectiveExcise(t *testing.T) {
	res := Allocate(Input{Lines: basket(), Policy: testPolicy(), Now: testNow})

	assert.Equal(t, "600.00", res.Subtotal.FormatMajor())
	assert.Equal(t, "8.00", res.ExciseAmount.FormatMajor(), "excise applies to the plan line only")
	assert.Equal(t, "97.28", res.VATAmount.FormatMajor(), "VAT base includes excise")
	assert.Equal(t, "705.28", res.Total.FormatMajor())
	assert.Equal(t, "105.28", res.TaxTotal().FormatMajor())

	require.Len(t, res.TaxRows, 2)
	assert.Equal(t, tax.KindExcise, res.TaxRows[0].Kind)
	assert.Equal(t, "8.00", res.TaxRows[0].Amount.FormatMajor())
	assert.Equal(t, tax.KindVAT, res.TaxRows[1].Kind)
	assert.Equal(t, "97.28", res.TaxRows[1].Amount.FormatMajor())
}

func TestAllocateProportionalAnyScope(t *testing.T) {
	res := Allocate(Input{
		Lines:  basket(),
		Rules:  []Candidate{fixedRule("SAVE50", "50")},
		Policy: testPolicy(),
		Now:    testNow,
	})

	require.Len(t, res.AdjustLines, 1)
	assert.Equal(t, "-50.00", res.AdjustLines[0].Amount().FormatMajor())
	assert.True(t, res.AdjustLines[0].Scopes.IsAny())

	assert.Equal(t, "550.00", res.Subtotal.FormatMajor())
	// Excise base: 80 - 50*(80/600) = 73.3333..., rounded at reporting.
	assert.Equal(t, "7.33", res.ExciseAmount.FormatMajor())
	assert.Equal(t, "89.17", res.VATAmount.FormatMajor())
	assert.Equal(t, "646.50", res.Total.FormatMajor())
}

func TestAllocatePlanScopedReducesExciseFully(t *testing.T) {
	res := Allocate(Input{
		Lines:  basket(),
		Rules:  []Candidate{fixedRule("PLAN20", "20", order.ScopePlan)},
		Policy: testPolicy(),
		Now:    testNow,
	})

	assert.Equal(t, "580.00", res.Subtotal.FormatMajor())
	assert.Equal(t, "6.00", res.ExciseAmount.FormatMajor(), "plan-scoped discount reduces the excise base in full")
}

func TestAllocateKitScopedLeavesExciseAlone(t *testing.T) {
	res := Allocate(Input{
		Lines:  basket(),
		Rules:  []Candidate{fixedRule("KIT100", "100", order.ScopeKit)},
		Policy: testPolicy(),
		Now:    testNow,
	})

	assert.Equal(t, "500.00", res.Subtotal.FormatMajor())
	assert.Equal(t, "8.00", res.ExciseAmount.FormatMajor(), "kit-scoped discount must not touch the excise base")
}

func TestAllocateTaxExempt(t *testing.T) {
	res := Allocate(Input{Lines: basket(), Policy: testPolicy(), TaxExempt: true, Now: testNow})

	assert.Equal(t, "600.00", res.Subtotal.FormatMajor())
	assert.True(t, res.ExciseAmount.IsZero())
	assert.True(t, res.VATAmount.IsZero())
	assert.Equal(t, "600.00", res.Total.FormatMajor())

	// Zero-amount rows still persisted, one per policy kind.
	require.Len(t, res.TaxRows, 2)
	for _, row := range res.TaxRows {
		assert.True(t, row.Amount.IsZero())
	}
}

func TestAllocateZeroRateKindsProduceNoRow(t *testing.T) {
	policy := tax.Policy{ExcisePercent: decimal.NewFromInt(10)} // VAT 0%
	res := Allocate(Input{Lines: basket(), Policy: policy, Now: testNow})

	require.Len(t, res.TaxRows, 1)
	assert.Equal(t, tax.KindExcise, res.TaxRows[0].Kind)
	assert.True(t, res.VATAmount.IsZero())
}

func TestAllocateFixedRuleCapsAtEligibleBase(t *testing.T) {
	res := Allocate(Input{
		Lines:  basket(),
		Rules:  []Candidate{fixedRule("BIGKIT", "500", order.ScopeKit)},
		Policy: testPolicy(),
		Now:    testNow,
	})

	require.Len(t, res.AdjustLines, 1)
	assert.Equal(t, "-400.00", res.AdjustLines[0].Amount().FormatMajor(), "fixed discount caps at the eligible base")
	assert.Equal(t, "200.00", res.Subtotal.FormatMajor())
}

func TestAllocatePercentRule(t *testing.T) {
	res := Allocate(Input{
		Lines:  basket(),
		Rules:  []Candidate{percentRule("PLAN10", 10, order.ScopePlan)},
		Policy: testPolicy(),
		Now:    testNow,
	})

	require.Len(t, res.AdjustLines, 1)
	assert.Equal(t, "-8.00", res.AdjustLines[0].Amount().FormatMajor())
	assert.Equal(t, "592.00", res.Subtotal.FormatMajor())
}

func TestAllocateSubtotalFloorsAtZero(t *testing.T) {
	res := Allocate(Input{
		Lines: []order.Line{
			line(order.KindExtra, "10"),
			{Kind: order.KindAdjust, Quantity: 1, UnitPrice: types.MustParse("-25")},
		},
		Policy: testPolicy(),
		Now:    testNow,
	})

	assert.True(t, res.Subtotal.IsZero())
	assert.True(t, res.ExciseAmount.IsZero())
	assert.True(t, res.Total.IsZero())
}

func TestAllocateExpiredRuleReportsReason(t *testing.T) {
	expired := fixedRule("OLD", "50")
	past := testNow.AddDate(0, -1, 0)
	expired.Rule.ValidUntil = &past

	res := Allocate(Input{
		Lines:  basket(),
		Rules:  []Candidate{expired},
		Policy: testPolicy(),
		Now:    testNow,
	})

	assert.Empty(t, res.AdjustLines)
	require.Len(t, res.Rules, 1)
	assert.False(t, res.Rules[0].Validation.OK)
	assert.Equal(t, discount.ReasonExpired, res.Rules[0].Validation.Reason)
	assert.Equal(t, "600.00", res.Subtotal.FormatMajor(), "rejected rules leave the basket untouched")
}

func TestAllocateNoEligibleBase(t *testing.T) {
	res := Allocate(Input{
		Lines:  basket(),
		Rules:  []Candidate{fixedRule("EXTRAS", "10", order.ScopeExtra)},
		Policy: testPolicy(),
		Now:    testNow,
	})

	assert.Empty(t, res.AdjustLines)
	require.Len(t, res.Rules, 1)
	assert.Equal(t, discount.ReasonNoEligibleBase, res.Rules[0].Validation.Reason)
}

func TestAllocateTargetFilters(t *testing.T) {
	lines := []order.Line{
		{Kind: order.KindPlan, Quantity: 1, UnitPrice: types.MustParse("80"), PlanRef: "residential"},
		{Kind: order.KindPlan, Quantity: 1, UnitPrice: types.MustParse("200"), PlanRef: "business"},
	}
	c := percentRule("RES10", 10, order.ScopePlan)
	c.Rule.TargetPlanRefs = []string{"residential"}

	res := Allocate(Input{Lines: lines, Rules: []Candidate{c}, Policy: testPolicy(), Now: testNow})

	require.Len(t, res.AdjustLines, 1)
	assert.Equal(t, "-8.00", res.AdjustLines[0].Amount().FormatMajor(), "only the targeted plan ref forms the eligible base")
}

func TestAllocatePerUserCap(t *testing.T) {
	c := fixedRule("ONCE", "50")
	c.Rule.PerUserLimit = 1
	c.UserRedemptions = 1

	res := Allocate(Input{Lines: basket(), Rules: []Candidate{c}, Policy: testPolicy(), Now: testNow})

	assert.Empty(t, res.AdjustLines)
	require.Len(t, res.Rules, 1)
	assert.Equal(t, discount.ReasonUserExhausted, res.Rules[0].Validation.Reason)
}

func TestAllocateManualAdjustsParticipate(t *testing.T) {
	lines := append(basket(), order.Line{
		Kind:      order.KindAdjust,
		Quantity:  1,
		UnitPrice: types.MustParse("-30"),
		Scopes:    order.ScopeSet{order.ScopePlan},
	})

	res := Allocate(Input{Lines: lines, Policy: testPolicy(), Now: testNow})

	assert.Equal(t, "570.00", res.Subtotal.FormatMajor())
	assert.Equal(t, "5.00", res.ExciseAmount.FormatMajor(), "manual plan-scoped adjustment reduces the excise base")
}
