// Package id defines TypeID-based identity types for all billing entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all billing entity types.
const (
	PrefixOrder        Prefix = "ord"   // Priced purchase order
	PrefixOrderLine    Prefix = "line"  // Order line item
	PrefixAccount      Prefix = "acct"  // Billing account
	PrefixEntry        Prefix = "ent"   // Ledger account entry
	PrefixSubscription Prefix = "sub"   // Recurring subscription
	PrefixWallet       Prefix = "wal"   // Prepaid wallet
	PrefixUser         Prefix = "usr"   // Customer
	PrefixCoupon       Prefix = "cpn"   // Discount coupon
	PrefixPromotion    Prefix = "promo" // Auto-applied promotion
	PrefixRegion       Prefix = "reg"   // Sales region
	PrefixAgent        Prefix = "agent" // Sales agent
	PrefixOrderTax     Prefix = "otax"  // Order tax snapshot row
)

// ID is the primary identifier type for all billing entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "ord_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// OrderID is a type-safe identifier for orders (prefix: "ord").
type OrderID = ID

// OrderLineID is a type-safe identifier for order lines (prefix: "line").
type OrderLineID = ID

// AccountID is a type-safe identifier for billing accounts (prefix: "acct").
type AccountID = ID

// EntryID is a type-safe identifier for ledger entries (prefix: "ent").
type EntryID = ID

// SubscriptionID is a type-safe identifier for subscriptions (prefix: "sub").
type SubscriptionID = ID

// WalletID is a type-safe identifier for wallets (prefix: "wal").
type WalletID = ID

// UserID is a type-safe identifier for customers (prefix: "usr").
type UserID = ID

// CouponID is a type-safe identifier for coupons (prefix: "cpn").
type CouponID = ID

// PromotionID is a type-safe identifier for promotions (prefix: "promo").
type PromotionID = ID

// RegionID is a type-safe identifier for regions (prefix: "reg").
type RegionID = ID

// AgentID is a type-safe identifier for sales agents (prefix: "agent").
type AgentID = ID

// OrderTaxID is a type-safe identifier for order tax rows (prefix: "otax").
type OrderTaxID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

// NewOrderID generates a new unique order ID.
func NewOrderID() ID { return New(PrefixOrder) }

// NewOrderLineID generates a new unique order line ID.
func NewOrderLineID() ID { return New(PrefixOrderLine) }

// NewAccountID generates a new unique billing account ID.
func NewAccountID() ID { return New(PrefixAccount) }

// NewEntryID generates a new unique ledger entry ID.
func NewEntryID() ID { return New(PrefixEntry) }

// NewSubscriptionID generates a new unique subscription ID.
func NewSubscriptionID() ID { return New(PrefixSubscription) }

// NewWalletID generates a new unique wallet ID.
func NewWalletID() ID { return New(PrefixWallet) }

// NewUserID generates a new unique customer ID.
func NewUserID() ID { return New(PrefixUser) }

// NewCouponID generates a new unique coupon ID.
func NewCouponID() ID { return New(PrefixCoupon) }

// NewPromotionID generates a new unique promotion ID.
func NewPromotionID() ID { return New(PrefixPromotion) }

// NewRegionID generates a new unique region ID.
func NewRegionID() ID { return New(PrefixRegion) }

// NewAgentID generates a new unique sales agent ID.
func NewAgentID() ID { return New(PrefixAgent) }

// NewOrderTaxID generates a new unique order tax row ID.
func NewOrderTaxID() ID { return New(PrefixOrderTax) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
