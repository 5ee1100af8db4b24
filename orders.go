package billing

import (
	"context"
	"fmt"

	"github.com/kavanet/billing/account"
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/store"
)

// ConfirmPayment settles an order after its payment collaborator reports
// success: it ensures the order's invoice is on the ledger, posts the
// payment for the remaining residual, marks the order paid, redeems the
// discount rules that fired, and advances the billing cycle for renewal
// orders. Safe to call again for the same payment ref.
func (e *Engine) ConfirmPayment(ctx context.Context, orderID id.OrderID, paymentRef string) (*order.Order, error) {
	ord, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.TotalPrice == nil {
		if _, err := e.Price(ctx, orderID); err != nil {
			return nil, err
		}
		if ord, err = e.store.GetOrder(ctx, orderID); err != nil {
			return nil, err
		}
	}

	// A renewal order invoiced by CreateOrGetRenewalInvoice already has
	// its invoice under this ref; posting a second one with a different
	// description would double the charge.
	entries, err := e.store.ListEntriesByRef(ctx, ord.AccountID, ord.Ref())
	if err != nil {
		return nil, err
	}
	invoiced := false
	for _, en := range entries {
		if en.Type == account.TypeInvoice {
			invoiced = true
			break
		}
	}
	if !invoiced {
		if _, _, err := e.Post(ctx, PostRequest{
			AccountID:      ord.AccountID,
			Type:           account.TypeInvoice,
			Amount:         *ord.TotalPrice,
			Description:    "Order " + ord.ID.String(),
			ExternalRef:    ord.Ref(),
			OrderID:        ord.ID,
			SubscriptionID: ord.SubscriptionID,
		}); err != nil {
			return nil, err
		}
		if entries, err = e.store.ListEntriesByRef(ctx, ord.AccountID, ord.Ref()); err != nil {
			return nil, err
		}
	}

	if residual := account.Outstanding(entries); residual.IsPositive() {
		if _, _, err := e.Post(ctx, PostRequest{
			AccountID:      ord.AccountID,
			Type:           account.TypePayment,
			Amount:         residual.Negate(),
			Description:    fmt.Sprintf("Payment %s", paymentRef),
			ExternalRef:    ord.Ref(),
			OrderID:        ord.ID,
			SubscriptionID: ord.SubscriptionID,
			PaymentRef:     paymentRef,
		}); err != nil {
			return nil, err
		}
	}

	alreadyPaid := ord.PaymentStatus == order.PaymentPaid
	err = e.store.InTx(ctx, func(s store.Store) error {
		ord.PaymentStatus = order.PaymentPaid
		ord.Status = order.StatusConfirmed
		ord.Touch()
		if err := s.UpdateOrder(ctx, ord); err != nil {
			return err
		}
		if alreadyPaid {
			return nil
		}
		return e.redeemAppliedRules(ctx, s, ord)
	})
	if err != nil {
		return nil, err
	}

	if ord.IsSubscriptionRenewal {
		if _, err := e.AdvanceCycleIfNeeded(ctx, ord.ID); err != nil {
			return nil, err
		}
	}

	e.logger.Info("order payment confirmed",
		"order_id", ord.ID.String(),
		"payment_ref", paymentRef,
	)

	return ord, nil
}

// redeemAppliedRules increments redemption counters for every discount
// rule that produced an adjust line on the order. Counters move at
// payment confirmation, not at pricing, so repricing stays idempotent.
func (e *Engine) redeemAppliedRules(ctx context.Context, s store.Store, ord *order.Order) error {
	lines, err := s.ListOrderLines(ctx, ord.ID)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, l := range lines {
		if !l.IsAdjust() || l.RuleCode == "" || seen[l.RuleCode] {
			continue
		}
		seen[l.RuleCode] = true

		rule, err := s.GetCouponRule(ctx, l.RuleCode)
		if err != nil {
			if IsNotFound(err) {
				e.logger.Warn("applied rule no longer exists, skipping redemption",
					"order_id", ord.ID.String(), "rule_code", l.RuleCode)
				continue
			}
			return err
		}
		if err := s.IncrementRedemption(ctx, rule.ID, ord.UserID); err != nil {
			return err
		}
	}
	return nil
}
