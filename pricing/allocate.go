// Package pricing implements the discount and tax allocation engine: it
// turns a set of priced order lines and discount rules into scoped
// adjustment lines, a discounted subtotal, and the excise/VAT snapshot.
//
// Allocate is a pure function. Persistence of its output (adjust lines,
// OrderTax rows, the cached order total) belongs to the pricing facade.
package pricing

import (
	"time"

	"github.com/samber/lo"

	"github.com/kavanet/billing/discount"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/tax"
	"github.com/kavanet/billing/types"
)

// Candidate pairs a discount rule with the requesting user's redemption
// count, so eligibility can be decided without store access.
type Candidate struct {
	Rule            discount.Rule
	UserRedemptions int
}

// Input is one allocation request. Rules apply in slice order: promotions
// first (in configured order), then the coupon, if any.
type Input struct {
	Lines     []order.Line
	Rules     []Candidate
	Policy    tax.Policy
	TaxExempt bool
	Now       time.Time
}

// RuleOutcome reports what happened to one candidate rule.
type RuleOutcome struct {
	Code       string
	Validation discount.Validation
	Amount     types.Money // discount magnitude actually applied
}

// Result carries the rounded reported figures and the derived rows to
// persist. Total always equals Subtotal + ExciseAmount + VATAmount as
// reported, so the persisted figures balance.
type Result struct {
	Subtotal     types.Money
	ExciseAmount types.Money
	VATAmount    types.Money
	Total        types.Money

	AdjustLines []order.Line
	TaxRows     []tax.OrderTax
	Rules       []RuleOutcome
}

// TaxTotal returns excise plus VAT.
func (r Result) TaxTotal() types.Money {
	return r.ExciseAmount.Add(r.VATAmount)
}

// Allocate runs the allocation algorithm:
//
//  1. Partition positive lines by kind and sum each into a base.
//  2. For each live rule, compute its eligible base from the positive
//     lines its scope set and target filters cover; skip rules with no
//     eligible base.
//  3. Emit one negative adjust line per applied rule, carrying the rule's
//     scope set.
//  4. Discounted subtotal = max(0, positive lines + adjust lines).
//  5. Excise base = plan base, reduced fully by plan-scoped adjustments
//     and proportionally (plan share of the whole positive basket) by
//     basket-wide ones. Kit/install/extra-scoped adjustments never touch
//     it.
//  6. VAT is computed on the reported subtotal plus the reported excise.
//
// A tax-exempt basket forces both tax amounts to zero but still yields
// one zero-amount snapshot row per policy kind.
func Allocate(in Input) Result {
	positives := lo.Filter(in.Lines, func(l order.Line, _ int) bool {
		return !l.IsAdjust() && l.Amount().IsPositive()
	})
	byKind := lo.GroupBy(positives, func(l order.Line) order.LineKind { return l.Kind })

	bases := make(map[order.LineKind]types.Money, len(order.PositiveKinds))
	var totalPositive types.Money
	for _, kind := range order.PositiveKinds {
		var base types.Money
		for _, l := range byKind[kind] {
			base = base.Add(l.Amount())
		}
		bases[kind] = base
		totalPositive = totalPositive.Add(base)
	}

	// Pre-existing adjust lines (manual adjustments) participate exactly
	// like rule-emitted ones.
	adjusts := lo.Filter(in.Lines, func(l order.Line, _ int) bool { return l.IsAdjust() })

	result := Result{}
	for _, c := range in.Rules {
		outcome := RuleOutcome{Code: c.Rule.Code}
		outcome.Validation = c.Rule.Validate(in.Now, c.UserRedemptions)
		if !outcome.Validation.OK {
			result.Rules = append(result.Rules, outcome)
			continue
		}

		var eligible types.Money
		for _, l := range positives {
			if c.Rule.Targets(l) {
				eligible = eligible.Add(l.Amount())
			}
		}
		if !eligible.IsPositive() {
			outcome.Validation = discount.Validation{OK: false, Reason: discount.ReasonNoEligibleBase}
			result.Rules = append(result.Rules, outcome)
			continue
		}

		var amount types.Money
		switch c.Rule.Type {
		case discount.TypeFixed:
			amount = c.Rule.Amount.Min(eligible)
		default:
			amount = eligible.Percent(c.Rule.Percent)
		}
		amount = amount.Round()
		if !amount.IsPositive() {
			outcome.Validation = discount.Validation{OK: false, Reason: discount.ReasonNoEligibleBase}
			result.Rules = append(result.Rules, outcome)
			continue
		}

		scopes := c.Rule.Scopes
		if len(scopes) == 0 {
			scopes = order.ScopeSet{order.ScopeAny}
		}
		line := order.Line{
			Kind:        order.KindAdjust,
			Description: c.Rule.Name,
			Quantity:    1,
			UnitPrice:   amount.Negate(),
			Scopes:      scopes,
			RuleCode:    c.Rule.Code,
		}
		adjusts = append(adjusts, line)
		result.AdjustLines = append(result.AdjustLines, line)

		outcome.Amount = amount
		result.Rules = append(result.Rules, outcome)
	}

	// Discounted subtotal, floored at zero.
	subtotal := totalPositive
	for _, a := range adjusts {
		subtotal = subtotal.Add(a.Amount())
	}
	if subtotal.IsNegative() {
		subtotal = types.Zero()
	}
	result.Subtotal = subtotal.Round()

	// Excise base. Plan-scoped adjustments reduce it in full; basket-wide
	// ones by the plan's share of the whole positive basket. The
	// denominator is deliberately the full basket, not the rule's
	// eligible kinds — basket-wide coupons split proportionally across
	// everything they touched.
	exciseBase := bases[order.KindPlan]
	if totalPositive.IsPositive() {
		planShare := bases[order.KindPlan].Ratio(totalPositive)
		for _, a := range adjusts {
			switch {
			case a.Scopes.IsAny():
				exciseBase = exciseBase.Add(a.Amount().Scale(planShare))
			case a.Scopes.Contains(order.ScopePlan):
				exciseBase = exciseBase.Add(a.Amount())
			}
		}
	}
	if exciseBase.IsNegative() {
		exciseBase = types.Zero()
	}

	if in.TaxExempt {
		result.ExciseAmount = types.Zero()
		result.VATAmount = types.Zero()
		result.Total = result.Subtotal
		// Zero-valued rows are still persisted so downstream reporting
		// always finds a row per configured tax kind.
		for _, kind := range in.Policy.Kinds() {
			result.TaxRows = append(result.TaxRows, tax.OrderTax{
				Kind:    kind,
				Percent: in.Policy.RateFor(kind),
				Amount:  types.Zero(),
			})
		}
		return result
	}

	result.ExciseAmount = exciseBase.Percent(in.Policy.ExcisePercent).Round()
	// VAT is computed on top of excise, per local tax law.
	vatBase := result.Subtotal.Add(result.ExciseAmount)
	result.VATAmount = vatBase.Percent(in.Policy.VATPercent).Round()
	result.Total = result.Subtotal.Add(result.ExciseAmount).Add(result.VATAmount)

	for _, kind := range in.Policy.Kinds() {
		rate := in.Policy.RateFor(kind)
		if !rate.IsPositive() {
			continue
		}
		amount := result.ExciseAmount
		if kind == tax.KindVAT {
			amount = result.VATAmount
		}
		result.TaxRows = append(result.TaxRows, tax.OrderTax{
			Kind:    kind,
			Percent: rate,
			Amount:  amount,
		})
	}
	return result
}
