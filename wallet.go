package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/kavanet/billing/account"
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/store"
	"github.com/kavanet/billing/types"
	"github.com/kavanet/billing/wallet"
)

// ApplyWallet applies as much of a user's wallet balance as possible
// against the outstanding due of an order, debiting the wallet and
// posting the matching payment entry in one transaction. It returns the
// amount applied; a zero due or zero balance applies nothing and is not
// an error.
func (e *Engine) ApplyWallet(ctx context.Context, userID id.UserID, orderID id.OrderID) (types.Money, error) {
	ord, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return types.Zero(), err
	}

	var applied types.Money
	err = e.store.InTx(ctx, func(s store.Store) error {
		entries, err := s.ListEntriesByRef(ctx, ord.AccountID, ord.Ref())
		if err != nil {
			return err
		}
		due := account.Outstanding(entries).Max(types.Zero())
		if !due.IsPositive() {
			return nil
		}

		// The application ordinal keys the idempotency tuple, so a
		// later top-up can fund a second application of the same amount
		// against the same order.
		ordinal := 1
		for _, en := range entries {
			if en.Type == account.TypePayment && strings.HasPrefix(en.PaymentRef, "wallet:") {
				ordinal++
			}
		}

		w, err := s.GetWallet(ctx, userID)
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}
		applied = w.Balance.Min(due).Round()
		if !applied.IsPositive() {
			applied = types.Zero()
			return nil
		}

		w.Balance = w.Balance.Subtract(applied)
		w.Touch()
		if err := s.SaveWallet(ctx, w); err != nil {
			return err
		}

		entry := &account.Entry{
			Entity:      types.NewEntity(),
			ID:          id.NewEntryID(),
			AccountID:   ord.AccountID,
			Type:        account.TypePayment,
			AmountUSD:   applied.Negate(),
			Description: fmt.Sprintf("Wallet application #%d", ordinal),
			ExternalRef: ord.Ref(),
			OrderID:     ord.ID,
			PaymentRef:  "wallet:" + w.ID.String(),
		}
		entry.RegionSnapshot, entry.SalesAgentSnapshot, entry.SnapshotSource = e.resolveAttribution(ctx, PostRequest{
			AccountID: ord.AccountID,
			OrderID:   ord.ID,
		})
		return s.CreateEntry(ctx, entry)
	})
	if err != nil {
		return types.Zero(), err
	}

	if applied.IsPositive() {
		e.logger.Info("wallet applied",
			"user_id", userID.String(),
			"order_id", orderID.String(),
			"applied", applied.FormatMajor(),
		)
		e.plugins.EmitWalletApplied(ctx, userID.String(), orderID.String(), applied)
	}

	return applied, nil
}

// AddFunds credits a user's wallet and posts the matching ledger row in
// the same transaction, so the wallet and the ledger always agree. The
// ref ties the top-up to its payment collaborator's transaction.
func (e *Engine) AddFunds(ctx context.Context, userID id.UserID, amount types.Money, ref string) (*wallet.Wallet, error) {
	amount = amount.Round()
	if !amount.IsPositive() {
		return nil, ErrNegativeWalletLoad
	}

	acct, err := e.store.GetAccountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var w *wallet.Wallet
	err = e.store.InTx(ctx, func(s store.Store) error {
		var err error
		w, err = s.GetWallet(ctx, userID)
		switch {
		case err == nil:
		case IsNotFound(err):
			w = &wallet.Wallet{
				Entity: types.NewEntity(),
				ID:     id.NewWalletID(),
				UserID: userID,
			}
		default:
			return err
		}

		w.Balance = w.Balance.Add(amount)
		w.Touch()
		if err := s.SaveWallet(ctx, w); err != nil {
			return err
		}

		entry := &account.Entry{
			Entity:         types.NewEntity(),
			ID:             id.NewEntryID(),
			AccountID:      acct.ID,
			Type:           account.TypePayment,
			AmountUSD:      amount.Negate(),
			Description:    "Wallet top-up",
			ExternalRef:    "wallet:" + ref,
			PaymentRef:     ref,
			SnapshotSource: account.SourceUnresolved,
		}
		return s.CreateEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("wallet funds added",
		"user_id", userID.String(),
		"amount", amount.FormatMajor(),
		"balance", w.Balance.FormatMajor(),
		"ref", ref,
	)

	return w, nil
}
