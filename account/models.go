// Package account defines billing accounts and their immutable ledger
// entries, including the natural-key idempotency tuple and the frozen
// attribution snapshots.
package account

import (
	"strings"
	"time"

	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/types"
)

// Account is a customer's billing account, the ledger posting target.
type Account struct {
	types.Entity
	ID     id.AccountID `json:"id"`
	UserID id.UserID    `json:"user_id"`
	Name   string       `json:"name"`
}

// EntryType classifies a ledger posting. The sign of the amount is fixed
// by the type: invoices and charges positive, payments and credits negative.
type EntryType string

const (
	TypeInvoice    EntryType = "invoice"
	TypePayment    EntryType = "payment"
	TypeCreditNote EntryType = "credit_note"
	TypeAdjustment EntryType = "adjustment"
	TypeTax        EntryType = "tax"
)

// SignFor returns the required sign for an entry type: +1 for charges,
// -1 for payments and credits, 0 for adjustments (either sign).
func SignFor(t EntryType) int {
	switch t {
	case TypeInvoice, TypeTax:
		return 1
	case TypePayment, TypeCreditNote:
		return -1
	default:
		return 0
	}
}

// SnapshotSource records how an entry's region/agent attribution was
// derived. Frozen at post time; later corrections are additive reposts.
type SnapshotSource string

const (
	SourceManualOverride   SnapshotSource = "manual_override"
	SourceAuto             SnapshotSource = "auto"
	SourceAutoAmbiguous    SnapshotSource = "auto_ambiguous"
	SourceInstallSite      SnapshotSource = "install_site"
	SourceKitStock         SnapshotSource = "kit_stock"
	SourceManual           SnapshotSource = "manual"
	SourceSubscription     SnapshotSource = "subscription"
	SourceUnresolved       SnapshotSource = "unresolved"
	SourceManualCorrection SnapshotSource = "manual_correction"
)

// Entry is an immutable-once-created ledger posting against an account.
type Entry struct {
	types.Entity
	ID          id.EntryID   `json:"id"`
	AccountID   id.AccountID `json:"account_id"`
	Type        EntryType    `json:"type"`
	AmountUSD   types.Money  `json:"amount_usd"`
	Description string       `json:"description"`

	// ExternalRef is the natural key grouping an invoice with its payments.
	ExternalRef string `json:"external_ref"`

	// Optional links.
	OrderID        id.OrderID        `json:"order_id,omitempty"`
	SubscriptionID id.SubscriptionID `json:"subscription_id,omitempty"`
	PaymentRef     string            `json:"payment_ref,omitempty"`

	// Subscription period covered, when applicable.
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	// Reporting attribution, resolved once and frozen.
	RegionSnapshot     id.RegionID    `json:"region_snapshot,omitempty"`
	SalesAgentSnapshot id.AgentID     `json:"sales_agent_snapshot,omitempty"`
	SnapshotSource     SnapshotSource `json:"snapshot_source"`

	// ReversesEntryID links a manual-correction reversal to its original.
	ReversesEntryID id.EntryID `json:"reverses_entry_id,omitempty"`
}

// Key is the idempotency tuple: for a given key at most one entry may
// exist. Stores back it with a uniqueness constraint so a concurrent
// duplicate insert fails closed.
type Key struct {
	AccountID   id.AccountID
	Type        EntryType
	AmountUSD   types.Money
	Description string
	ExternalRef string
}

// Key returns the entry's idempotency tuple.
func (e *Entry) Key() Key {
	return Key{
		AccountID:   e.AccountID,
		Type:        e.Type,
		AmountUSD:   e.AmountUSD,
		Description: e.Description,
		ExternalRef: e.ExternalRef,
	}
}

// Hash returns the canonical string form of the tuple, suitable for a
// unique database column.
func (k Key) Hash() string {
	return strings.Join([]string{
		k.AccountID.String(),
		string(k.Type),
		k.AmountUSD.Round().FormatMajor(),
		k.Description,
		k.ExternalRef,
	}, "\x1f")
}

// Outstanding computes the unpaid residual for a set of entries sharing
// an external ref: invoice amounts plus (already negative) payment and
// credit-note amounts. Adjustment and tax rows do not participate.
func Outstanding(entries []*Entry) types.Money {
	var due types.Money
	for _, e := range entries {
		switch e.Type {
		case TypeInvoice, TypePayment, TypeCreditNote:
			due = due.Add(e.AmountUSD)
		}
	}
	return due
}
