// Package discount defines coupons and promotions as a unified Rule and
// their eligibility validation.
package discount

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/types"
)

// Type is the discount computation type.
type Type string

const (
	// TypePercent takes eligible_base × value/100.
	TypePercent Type = "percent"
	// TypeFixed takes min(value, eligible_base).
	TypeFixed Type = "fixed"
)

// Source distinguishes auto-applied promotions from code-redeemed coupons.
type Source string

const (
	SourcePromotion Source = "promotion"
	SourceCoupon    Source = "coupon"
)

// Rule is one discount rule. Promotions auto-apply in rule order; a
// coupon applies after, if its code is valid and under its caps.
type Rule struct {
	types.Entity
	ID     id.ID  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Source Source `json:"source"`
	Type   Type   `json:"type"`

	// Percentage for percent rules (e.g. 10 means 10%).
	Percent decimal.Decimal `json:"percent,omitempty"`
	// Amount for fixed rules.
	Amount types.Money `json:"amount,omitempty"`

	// Scope restricts which line kinds the rule may discount.
	// Empty or containing ScopeAny means basket-wide.
	Scopes order.ScopeSet `json:"scopes,omitempty"`
	// Optional target filters within the scope.
	TargetPlanRefs  []string `json:"target_plan_refs,omitempty"`
	TargetExtraRefs []string `json:"target_extra_refs,omitempty"`

	Active     bool       `json:"active"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	// Usage caps. Zero means uncapped.
	MaxRedemptions int `json:"max_redemptions"`
	PerUserLimit   int `json:"per_user_limit"`
	TimesRedeemed  int `json:"times_redeemed"`
}

// Validation is the structured outcome of an eligibility check.
// Business-rule rejections surface as a reason, never as an error and
// never as a silent no-op.
type Validation struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Validation reasons.
const (
	ReasonInactive       = "rule is not active"
	ReasonNotStarted     = "rule is not yet valid"
	ReasonExpired        = "rule has expired"
	ReasonExhausted      = "redemption cap reached"
	ReasonUserExhausted  = "per-user redemption cap reached"
	ReasonNoEligibleBase = "no eligible lines in basket"
)

// Validate checks the rule's validity window and caps at the given time.
// userRedemptions is how many times this user has already redeemed it.
func (r Rule) Validate(now time.Time, userRedemptions int) Validation {
	if !r.Active {
		return Validation{OK: false, Reason: ReasonInactive}
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return Validation{OK: false, Reason: ReasonNotStarted}
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return Validation{OK: false, Reason: ReasonExpired}
	}
	if r.MaxRedemptions > 0 && r.TimesRedeemed >= r.MaxRedemptions {
		return Validation{OK: false, Reason: ReasonExhausted}
	}
	if r.PerUserLimit > 0 && userRedemptions >= r.PerUserLimit {
		return Validation{OK: false, Reason: ReasonUserExhausted}
	}
	return Validation{OK: true}
}

// Targets reports whether a positive line passes the rule's scope set and
// optional target filters.
func (r Rule) Targets(l order.Line) bool {
	if !r.Scopes.CoversKind(l.Kind) {
		return false
	}
	if l.Kind == order.KindPlan && len(r.TargetPlanRefs) > 0 {
		return contains(r.TargetPlanRefs, l.PlanRef)
	}
	if l.Kind == order.KindExtra && len(r.TargetExtraRefs) > 0 {
		return contains(r.TargetExtraRefs, l.ExtraRef)
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
