// Package order defines the priced purchase order and its line items.
package order

import (
	"time"

	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/types"
)

// Status is the order lifecycle status.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusProcessing     Status = "processing"
	StatusConfirmed      Status = "confirmed"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed"
)

// PaymentStatus is the order payment status, mutated by payment collaborators.
type PaymentStatus string

const (
	PaymentUnpaid               PaymentStatus = "unpaid"
	PaymentPaid                 PaymentStatus = "paid"
	PaymentAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
)

// LineKind classifies an order line.
type LineKind string

const (
	KindKit     LineKind = "kit"     // Hardware kit
	KindPlan    LineKind = "plan"    // Recurring subscription plan
	KindInstall LineKind = "install" // Installation service
	KindExtra   LineKind = "extra"   // Extra charge
	KindAdjust  LineKind = "adjust"  // Discount adjustment (negative amount)
)

// PositiveKinds are the chargeable line kinds, in allocation order.
var PositiveKinds = []LineKind{KindKit, KindPlan, KindInstall, KindExtra}

// Scope names the line kinds a discount adjustment is permitted to reduce.
// ScopeAny means basket-wide.
type Scope string

const (
	ScopePlan    Scope = "plan"
	ScopeKit     Scope = "kit"
	ScopeInstall Scope = "install"
	ScopeExtra   Scope = "extra"
	ScopeAny     Scope = "any"
)

// ScopeSet is the set of discount scopes carried on an adjust line. An
// empty set, or one naming ScopeAny, applies basket-wide.
type ScopeSet []Scope

// Contains reports whether the set names the given scope.
func (s ScopeSet) Contains(scope Scope) bool {
	for _, v := range s {
		if v == scope {
			return true
		}
	}
	return false
}

// IsAny reports whether the set is basket-wide.
func (s ScopeSet) IsAny() bool {
	return len(s) == 0 || s.Contains(ScopeAny)
}

// CoversKind reports whether a positive line of the given kind is
// inside this scope set.
func (s ScopeSet) CoversKind(kind LineKind) bool {
	if s.IsAny() {
		return true
	}
	return s.Contains(Scope(kind))
}

// Coords is a WGS84 coordinate pair.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Order is an instance of a priced purchase. Never deleted; cancellation
// is a status transition. TotalPrice and the OrderTax snapshot are cached
// derived state owned by the pricing facade.
type Order struct {
	types.Entity
	ID                    id.OrderID       `json:"id"`
	AccountID             id.AccountID     `json:"account_id"`
	UserID                id.UserID        `json:"user_id"`
	SubscriptionID        id.SubscriptionID `json:"subscription_id,omitempty"`
	Status                Status           `json:"status"`
	PaymentStatus         PaymentStatus    `json:"payment_status"`
	TotalPrice            *types.Money     `json:"total_price,omitempty"`
	IsSubscriptionRenewal bool             `json:"is_subscription_renewal"`
	CouponCode            string           `json:"coupon_code,omitempty"`
	TaxExempt             bool             `json:"tax_exempt"`

	// ExternalRef groups this order's ledger rows (invoice + payments).
	// Defaults to "order:<id>"; renewal orders carry the period ref.
	ExternalRef string `json:"external_ref"`

	// Attribution inputs, in resolution priority order. All optional.
	Coords         *Coords      `json:"coords,omitempty"`
	InstallCoords  *Coords      `json:"install_coords,omitempty"`
	KitRegionID    id.RegionID  `json:"kit_region_id,omitempty"`
	ManualRegionID id.RegionID  `json:"manual_region_id,omitempty"`
	AgentID        id.AgentID   `json:"agent_id,omitempty"`

	PaymentHoldUntil *time.Time `json:"payment_hold_until,omitempty"`
}

// Ref returns the order's external reference, defaulting to "order:<id>".
func (o *Order) Ref() string {
	if o.ExternalRef != "" {
		return o.ExternalRef
	}
	return "order:" + o.ID.String()
}

// Line is one priced component of an order. Adjust lines carry a negative
// unit price and a ScopeSet naming the kinds they discount.
type Line struct {
	ID          id.OrderLineID `json:"id"`
	OrderID     id.OrderID     `json:"order_id"`
	Kind        LineKind       `json:"kind"`
	Description string         `json:"description"`
	Quantity    int64          `json:"quantity"`
	UnitPrice   types.Money    `json:"unit_price"`
	Scopes      ScopeSet       `json:"scopes,omitempty"`
	RuleCode    string         `json:"rule_code,omitempty"` // discount rule that emitted this adjust line

	// Target references for scoped discount filters.
	PlanRef  string `json:"plan_ref,omitempty"`
	ExtraRef string `json:"extra_ref,omitempty"`
}

// Amount returns quantity × unit price, unrounded.
func (l Line) Amount() types.Money {
	return l.UnitPrice.Multiply(l.Quantity)
}

// IsAdjust reports whether the line is a discount adjustment.
func (l Line) IsAdjust() bool { return l.Kind == KindAdjust }
