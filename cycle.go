package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/kavanet/billing/account"
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/store"
	"github.com/kavanet/billing/subscription"
	"github.com/kavanet/billing/types"
)

// CreateRenewalOrder creates the renewal order for a subscription if
// today is exactly PrebillLeadDays before its (rolled-forward) due date.
// Outside that boundary it returns (nil, nil). The order carries the
// period's external ref, so a second call on the boundary returns the
// already-created order instead of a duplicate.
func (e *Engine) CreateRenewalOrder(ctx context.Context, subID id.SubscriptionID) (*order.Order, error) {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if err := e.checkRenewable(sub); err != nil {
		return nil, err
	}

	due, err := subscription.RollForward(sub.NextBillingDate, sub.Cycle, e.today())
	if err != nil {
		return nil, err
	}
	if subscription.DaysUntil(e.today(), due) != e.config.PrebillLeadDays {
		return nil, nil
	}

	return e.ensureRenewalOrder(ctx, sub, due)
}

// AdvanceCycleIfNeeded moves a subscription's next billing date forward
// by one cycle after its renewal order is paid. Paying early does not
// advance: the due date must also have arrived. Returns whether the
// cycle advanced.
func (e *Engine) AdvanceCycleIfNeeded(ctx context.Context, orderID id.OrderID) (bool, error) {
	ord, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !ord.IsSubscriptionRenewal || ord.PaymentStatus != order.PaymentPaid {
		return false, nil
	}
	if ord.SubscriptionID.IsNil() {
		return false, ErrSubscriptionNotFound
	}

	sub, err := e.store.GetSubscription(ctx, ord.SubscriptionID)
	if err != nil {
		return false, err
	}
	due := subscription.DateOf(sub.NextBillingDate)
	if e.today().Before(due) {
		return false, nil
	}

	err = e.store.InTx(ctx, func(s store.Store) error {
		now := e.clock().UTC()
		sub.NextBillingDate = sub.Cycle.Advance(due)
		sub.LastBilledAt = &now
		sub.Touch()
		return s.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		return false, err
	}

	e.logger.Info("billing cycle advanced",
		"subscription_id", sub.ID.String(),
		"next_billing_date", sub.NextBillingDate.Format("2006-01-02"),
	)

	return true, nil
}

// CreateOrGetRenewalInvoice produces the ledger invoice for a
// subscription's upcoming period, creating the renewal order and pricing
// it first when needed, then applying wallet funds against the invoice.
// The second return reports whether a new invoice was created; false
// means the period was already invoiced.
func (e *Engine) CreateOrGetRenewalInvoice(ctx context.Context, subID id.SubscriptionID) (*order.Order, bool, error) {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, false, err
	}
	if err := e.checkRenewable(sub); err != nil {
		return nil, false, err
	}

	due, err := subscription.RollForward(sub.NextBillingDate, sub.Cycle, e.today())
	if err != nil {
		return nil, false, err
	}
	start, end := sub.PeriodFor(due)

	if existing, err := e.store.FindInvoiceForPeriod(ctx, sub.ID, start, end); err == nil {
		ord, err := e.store.GetOrder(ctx, existing.OrderID)
		if err != nil {
			return nil, false, err
		}
		return ord, false, nil
	} else if !IsNotFound(err) {
		return nil, false, err
	}

	ord, err := e.ensureRenewalOrder(ctx, sub, due)
	if err != nil {
		return nil, false, err
	}
	totals, err := e.Price(ctx, ord.ID)
	if err != nil {
		return nil, false, err
	}

	_, _, err = e.Post(ctx, PostRequest{
		AccountID:      sub.AccountID,
		Type:           account.TypeInvoice,
		Amount:         totals.Total,
		Description:    fmt.Sprintf("Subscription renewal %s (%s to %s)", sub.PlanName, start.Format("2006-01-02"), end.Format("2006-01-02")),
		ExternalRef:    sub.PeriodRef(start),
		OrderID:        ord.ID,
		SubscriptionID: sub.ID,
		PeriodStart:    &start,
		PeriodEnd:      &end,
	})
	if err != nil {
		return nil, false, err
	}

	if _, err := e.ApplyWallet(ctx, sub.UserID, ord.ID); err != nil {
		return nil, false, err
	}
	if err := e.settleIfCovered(ctx, ord); err != nil {
		return nil, false, err
	}

	e.logger.Info("renewal invoiced",
		"subscription_id", sub.ID.String(),
		"order_id", ord.ID.String(),
		"period_start", start.Format("2006-01-02"),
		"total", totals.Total.FormatMajor(),
	)
	e.plugins.EmitRenewalInvoiced(ctx, sub, ord)

	return ord, true, nil
}

// RunPrebill walks the given subscriptions and invoices every active one
// whose due date is within the prebill window. It returns how many
// subscriptions were in the window and how many invoices that would
// create. A dry run reports identical counts with zero writes.
func (e *Engine) RunPrebill(ctx context.Context, subIDs []id.SubscriptionID, dryRun bool) (processed, created int, err error) {
	for _, subID := range subIDs {
		sub, err := e.store.GetSubscription(ctx, subID)
		if err != nil {
			e.logger.Warn("prebill: subscription lookup failed",
				"subscription_id", subID.String(), "error", err)
			continue
		}
		if sub.Status != subscription.StatusActive {
			continue
		}
		due, err := subscription.RollForward(sub.NextBillingDate, sub.Cycle, e.today())
		if err != nil {
			e.logger.Warn("prebill: billing date corrupt, skipping",
				"subscription_id", subID.String(), "error", err)
			continue
		}
		days := subscription.DaysUntil(e.today(), due)
		if days < 0 || days > e.config.PrebillLeadDays {
			continue
		}
		if e.config.InvoiceStartDate != nil && due.Before(subscription.DateOf(*e.config.InvoiceStartDate)) {
			continue
		}
		processed++

		start, end := sub.PeriodFor(due)
		if _, err := e.store.FindInvoiceForPeriod(ctx, sub.ID, start, end); err == nil {
			continue
		} else if !IsNotFound(err) {
			return processed, created, err
		}
		created++

		if dryRun {
			continue
		}
		if _, _, err := e.CreateOrGetRenewalInvoice(ctx, subID); err != nil {
			e.logger.Error("prebill: invoicing failed",
				"subscription_id", subID.String(), "error", err)
			created--
		}
	}

	e.logger.Info("prebill run complete",
		"processed", processed, "created", created, "dry_run", dryRun)

	return processed, created, nil
}

// EnforceCutoff checks every active subscription whose cutoff date has
// arrived and suspends those whose current period invoice still has an
// unpaid residual, when auto-suspension is enabled. Returns how many
// subscriptions were checked and how many were (or would be) suspended.
func (e *Engine) EnforceCutoff(ctx context.Context, subIDs []id.SubscriptionID, dryRun bool) (checked, suspended int, err error) {
	for _, subID := range subIDs {
		sub, err := e.store.GetSubscription(ctx, subID)
		if err != nil {
			e.logger.Warn("cutoff: subscription lookup failed",
				"subscription_id", subID.String(), "error", err)
			continue
		}
		if sub.Status != subscription.StatusActive {
			continue
		}

		anchor := subscription.DateOf(sub.NextBillingDate)
		cutoff := anchor.AddDate(0, 0, -e.config.CutoffDaysBeforeAnchor)
		if e.today().Before(cutoff) {
			continue
		}
		checked++

		entries, err := e.store.ListEntriesByRef(ctx, sub.AccountID, sub.PeriodRef(anchor))
		if err != nil {
			return checked, suspended, err
		}
		residual := account.Outstanding(entries)
		if !residual.IsPositive() {
			continue
		}
		if !e.config.AutoSuspendOnCutoff {
			e.logger.Warn("cutoff reached with unpaid residual, auto-suspend disabled",
				"subscription_id", sub.ID.String(),
				"residual", residual.FormatMajor(),
			)
			continue
		}
		suspended++

		if dryRun {
			continue
		}
		err = e.store.InTx(ctx, func(s store.Store) error {
			sub.Status = subscription.StatusSuspended
			sub.Touch()
			return s.UpdateSubscription(ctx, sub)
		})
		if err != nil {
			return checked, suspended, err
		}
		e.logger.Info("subscription suspended at cutoff",
			"subscription_id", sub.ID.String(),
			"residual", residual.FormatMajor(),
		)
		e.plugins.EmitSubscriptionSuspended(ctx, sub)
	}

	e.logger.Info("cutoff run complete",
		"checked", checked, "suspended", suspended, "dry_run", dryRun)

	return checked, suspended, nil
}

// checkRenewable validates that a subscription can enter the renewal
// pipeline.
func (e *Engine) checkRenewable(sub *subscription.Subscription) error {
	if sub.Status != subscription.StatusActive {
		return ErrSubscriptionNotActive
	}
	if sub.UserID.IsNil() || sub.AccountID.IsNil() || sub.PlanRef == "" || sub.NextBillingDate.IsZero() {
		return ErrSubscriptionIncomplete
	}
	return nil
}

// ensureRenewalOrder finds or creates the renewal order for the period
// due at the given date, persisting the rolled-forward billing date when
// it moved.
func (e *Engine) ensureRenewalOrder(ctx context.Context, sub *subscription.Subscription, due time.Time) (*order.Order, error) {
	ref := sub.PeriodRef(due)
	if existing, err := e.store.FindOrderByRef(ctx, ref); err == nil {
		return existing, nil
	} else if !IsNotFound(err) {
		return nil, err
	}

	ord := &order.Order{
		Entity:                types.NewEntity(),
		ID:                    id.NewOrderID(),
		AccountID:             sub.AccountID,
		UserID:                sub.UserID,
		SubscriptionID:        sub.ID,
		Status:                order.StatusPendingPayment,
		PaymentStatus:         order.PaymentUnpaid,
		IsSubscriptionRenewal: true,
		ExternalRef:           ref,
		PaymentHoldUntil:      &due,
	}
	line := &order.Line{
		ID:          id.NewOrderLineID(),
		OrderID:     ord.ID,
		Kind:        order.KindPlan,
		Description: sub.PlanName,
		Quantity:    1,
		UnitPrice:   sub.PlanPrice,
		PlanRef:     sub.PlanRef,
	}

	err := e.store.InTx(ctx, func(s store.Store) error {
		if err := s.CreateOrder(ctx, ord); err != nil {
			return err
		}
		if err := s.AddOrderLine(ctx, line); err != nil {
			return err
		}
		if !subscription.DateOf(sub.NextBillingDate).Equal(due) {
			sub.NextBillingDate = due
			sub.Touch()
			return s.UpdateSubscription(ctx, sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("renewal order created",
		"subscription_id", sub.ID.String(),
		"order_id", ord.ID.String(),
		"due", due.Format("2006-01-02"),
	)

	return ord, nil
}

// settleIfCovered marks a renewal order paid when its ledger residual is
// fully covered, so wallet-funded renewals complete without a payment
// collaborator.
func (e *Engine) settleIfCovered(ctx context.Context, ord *order.Order) error {
	entries, err := e.store.ListEntriesByRef(ctx, ord.AccountID, ord.Ref())
	if err != nil {
		return err
	}
	if account.Outstanding(entries).IsPositive() {
		return nil
	}
	return e.store.InTx(ctx, func(s store.Store) error {
		ord.PaymentStatus = order.PaymentPaid
		ord.Status = order.StatusConfirmed
		ord.Touch()
		return s.UpdateOrder(ctx, ord)
	})
}
