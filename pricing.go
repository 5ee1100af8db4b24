package billing

import (
	"context"

	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/pricing"
	"github.com/kavanet/billing/store"
	"github.com/kavanet/billing/tax"
	"github.com/kavanet/billing/types"
)

// Totals is what the pricing facade persists and returns. Calling Price
// again on an unchanged order overwrites the snapshot with an identical
// value.
type Totals struct {
	Subtotal     types.Money `json:"subtotal"`
	ExciseAmount types.Money `json:"excise_amount"`
	VATAmount    types.Money `json:"vat_amount"`
	TaxTotal     types.Money `json:"tax_total"`
	Total        types.Money `json:"total"`

	// Coupon outcome for the order's coupon code, if it carries one.
	// A rejected coupon is a structured reason, never an error.
	CouponApplied bool   `json:"coupon_applied"`
	CouponReason  string `json:"coupon_reason,omitempty"`

	Rules []pricing.RuleOutcome `json:"rules,omitempty"`
}

// Price orchestrates an order's lines through the allocation engine and
// persists the resulting tax snapshot, adjust lines, and cached total.
// It may be called after any line-item mutation; re-running replaces the
// whole derived state.
func (e *Engine) Price(ctx context.Context, orderID id.OrderID) (*Totals, error) {
	ord, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := e.store.ListOrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrOrderNoLines
	}

	rules, couponFound, err := e.candidateRules(ctx, ord)
	if err != nil {
		return nil, err
	}

	// Rule-generated adjust lines from previous runs are rebuilt below;
	// only positive lines and manual adjustments feed the engine.
	input := make([]order.Line, 0, len(lines))
	for _, l := range lines {
		if l.IsAdjust() && l.RuleCode != "" {
			continue
		}
		input = append(input, l)
	}

	result := pricing.Allocate(pricing.Input{
		Lines:     input,
		Rules:     rules,
		Policy:    e.taxPolicy(ctx),
		TaxExempt: ord.TaxExempt,
		Now:       e.clock().UTC(),
	})

	adjusts := make([]order.Line, len(result.AdjustLines))
	for i, l := range result.AdjustLines {
		l.ID = id.NewOrderLineID()
		l.OrderID = ord.ID
		adjusts[i] = l
	}
	taxRows := make([]tax.OrderTax, len(result.TaxRows))
	for i, row := range result.TaxRows {
		row.ID = id.NewOrderTaxID()
		row.OrderID = ord.ID
		taxRows[i] = row
	}

	err = e.store.InTx(ctx, func(s store.Store) error {
		if err := s.ReplaceAdjustLines(ctx, ord.ID, adjusts); err != nil {
			return err
		}
		if err := s.ReplaceOrderTaxes(ctx, ord.ID, taxRows); err != nil {
			return err
		}
		total := result.Total
		ord.TotalPrice = &total
		ord.Touch()
		return s.UpdateOrder(ctx, ord)
	})
	if err != nil {
		return nil, err
	}

	totals := &Totals{
		Subtotal:     result.Subtotal,
		ExciseAmount: result.ExciseAmount,
		VATAmount:    result.VATAmount,
		TaxTotal:     result.TaxTotal(),
		Total:        result.Total,
		Rules:        result.Rules,
	}
	if ord.CouponCode != "" {
		if !couponFound {
			totals.CouponReason = "coupon code not found"
		}
		for _, outcome := range result.Rules {
			if outcome.Code == ord.CouponCode {
				totals.CouponApplied = outcome.Validation.OK
				totals.CouponReason = outcome.Validation.Reason
			}
		}
	}

	e.logger.Debug("order priced",
		"order_id", ord.ID.String(),
		"subtotal", totals.Subtotal.FormatMajor(),
		"tax_total", totals.TaxTotal.FormatMajor(),
		"total", totals.Total.FormatMajor(),
	)
	e.plugins.EmitOrderPriced(ctx, ord, totals)

	return totals, nil
}

// RecomputeTaxes re-runs allocation for an order, replacing the whole
// derived snapshot. Identical to Price; the name exists for callers that
// react to tax configuration changes rather than line mutations.
func (e *Engine) RecomputeTaxes(ctx context.Context, orderID id.OrderID) (*Totals, error) {
	return e.Price(ctx, orderID)
}

// candidateRules assembles the live discount rules for an order:
// promotions in configured order, then the order's coupon. The second
// return reports whether the coupon code resolved at all.
func (e *Engine) candidateRules(ctx context.Context, ord *order.Order) ([]pricing.Candidate, bool, error) {
	promos, err := e.store.ListActivePromotions(ctx)
	if err != nil {
		return nil, false, err
	}

	rules := make([]pricing.Candidate, 0, len(promos)+1)
	for _, p := range promos {
		redeemed, err := e.store.CountUserRedemptions(ctx, p.ID, ord.UserID)
		if err != nil {
			return nil, false, err
		}
		rules = append(rules, pricing.Candidate{Rule: *p, UserRedemptions: redeemed})
	}

	couponFound := false
	if ord.CouponCode != "" {
		cpn, err := e.store.GetCouponRule(ctx, ord.CouponCode)
		switch {
		case err == nil:
			redeemed, err := e.store.CountUserRedemptions(ctx, cpn.ID, ord.UserID)
			if err != nil {
				return nil, false, err
			}
			rules = append(rules, pricing.Candidate{Rule: *cpn, UserRedemptions: redeemed})
			couponFound = true
		case IsNotFound(err):
			// Structured rejection surfaces via Totals.CouponReason.
		default:
			return nil, false, err
		}
	}
	return rules, couponFound, nil
}
