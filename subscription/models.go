// Package subscription defines the recurring user/plan relationship and
// its billing-cycle date arithmetic.
package subscription

import (
	"errors"
	"time"

	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/types"
)

// Status is the subscription lifecycle status. Suspended subscriptions
// can return to active once dues are cleared.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Cycle is the billing cycle length.
type Cycle string

const (
	CycleMonthly   Cycle = "monthly"
	CycleQuarterly Cycle = "quarterly"
	CycleYearly    Cycle = "yearly"
)

// maxRollForwardHops bounds date rolling so corrupt billing dates cannot
// loop forever.
const maxRollForwardHops = 24

// ErrBillingDateCorrupt is returned when a next billing date cannot be
// rolled forward to the present within the hop bound.
var ErrBillingDateCorrupt = errors.New("subscription: next billing date too far in the past")

// Subscription is a recurring relationship between a user and a plan.
// Created at order fulfillment; mutated by the billing cycle scheduler.
type Subscription struct {
	types.Entity
	ID        id.SubscriptionID `json:"id"`
	UserID    id.UserID         `json:"user_id"`
	AccountID id.AccountID      `json:"account_id"`

	// Plan reference and its recurring price, denormalized from the plan
	// read model at fulfillment time.
	PlanRef   string      `json:"plan_ref"`
	PlanName  string      `json:"plan_name"`
	PlanPrice types.Money `json:"plan_price"`

	Cycle           Cycle      `json:"cycle"`
	Status          Status     `json:"status"`
	NextBillingDate time.Time  `json:"next_billing_date"`
	LastBilledAt    *time.Time `json:"last_billed_at,omitempty"`

	// Reporting attribution defaults used when an order has none.
	RegionID id.RegionID `json:"region_id,omitempty"`
	AgentID  id.AgentID  `json:"agent_id,omitempty"`
}

// Advance returns t moved forward by one billing cycle.
func (c Cycle) Advance(t time.Time) time.Time {
	switch c {
	case CycleQuarterly:
		return t.AddDate(0, 3, 0)
	case CycleYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// RollForward advances due by whole cycles until it is on or after today.
// Iteration is bounded; a date still in the past after the bound returns
// ErrBillingDateCorrupt.
func RollForward(due time.Time, c Cycle, today time.Time) (time.Time, error) {
	due = DateOf(due)
	today = DateOf(today)
	for i := 0; i < maxRollForwardHops; i++ {
		if !due.Before(today) {
			return due, nil
		}
		due = c.Advance(due)
	}
	if due.Before(today) {
		return time.Time{}, ErrBillingDateCorrupt
	}
	return due, nil
}

// DateOf truncates a time to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the whole-day distance from today to due.
func DaysUntil(today, due time.Time) int {
	return int(DateOf(due).Sub(DateOf(today)).Hours() / 24)
}

// PeriodFor returns the billing period anchored at the due date:
// [due, due+cycle).
func (s *Subscription) PeriodFor(due time.Time) (start, end time.Time) {
	start = DateOf(due)
	return start, s.Cycle.Advance(start)
}

// PeriodRef returns the external reference grouping the period's invoice
// with its payments.
func (s *Subscription) PeriodRef(periodStart time.Time) string {
	return "sub:" + s.ID.String() + ":" + DateOf(periodStart).Format("2006-01-02")
}
