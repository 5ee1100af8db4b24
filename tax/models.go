// Package tax defines tax kinds, configured rates, the per-order tax
// snapshot rows, and the TaxPolicy passed into the allocation engine.
package tax

import (
	"github.com/shopspring/decimal"

	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/types"
)

// Kind names a tax.
type Kind string

const (
	// KindExcise applies only to recurring plan revenue.
	KindExcise Kind = "EXCISE"
	// KindVAT applies to subtotal plus excise.
	KindVAT Kind = "VAT"
)

// Rate is a configured tax rate row from the rate source.
type Rate struct {
	types.Entity
	Kind    Kind            `json:"kind"`
	Percent decimal.Decimal `json:"percent"`
}

// OrderTax is a persisted snapshot row per tax kind for one order.
// Rows are rebuilt (deleted and recreated) every allocation run — never
// incrementally patched — so recomputation is idempotent by construction.
type OrderTax struct {
	ID      id.OrderTaxID   `json:"id"`
	OrderID id.OrderID      `json:"order_id"`
	Kind    Kind            `json:"kind"`
	Percent decimal.Decimal `json:"percent"` // rate used, kept for audit
	Amount  types.Money     `json:"amount"`
}

// Policy is the explicit tax configuration handed to the allocation
// engine. It replaces the legacy implicit global fallback: callers build
// it from stored Rate rows and apply Default() visibly when a row is
// missing.
type Policy struct {
	VATPercent    decimal.Decimal `json:"vat_percent"`
	ExcisePercent decimal.Decimal `json:"excise_percent"`
}

// Default returns the engine defaults applied when no rate rows are
// configured: VAT 0%, excise 10%.
func Default() Policy {
	return Policy{
		VATPercent:    decimal.Zero,
		ExcisePercent: decimal.NewFromInt(10),
	}
}

// Kinds returns the tax kinds this policy knows, in reporting order.
func (p Policy) Kinds() []Kind {
	return []Kind{KindExcise, KindVAT}
}

// RateFor returns the configured percentage for a kind.
func (p Policy) RateFor(kind Kind) decimal.Decimal {
	switch kind {
	case KindExcise:
		return p.ExcisePercent
	case KindVAT:
		return p.VATPercent
	default:
		return decimal.Zero
	}
}
