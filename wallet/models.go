// Package wallet defines the per-user prepaid balance.
package wallet

import (
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/types"
)

// Wallet is a customer's prepaid balance. The balance is non-negative and
// mutated only through the engine's AddFunds/ApplyWallet operations, both
// of which post a matching ledger row in the same transaction so the
// wallet and the ledger always agree.
type Wallet struct {
	types.Entity
	ID      id.WalletID `json:"id"`
	UserID  id.UserID   `json:"user_id"`
	Balance types.Money `json:"balance"`
}
