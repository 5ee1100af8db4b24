// Package plugin provides an extensible plugin system for the billing
// engine. Plugins hook into lifecycle events — this is where out-of-scope
// collaborators (notifications, reporting, webhooks) attach without
// entering the billing core.
package plugin

import "context"

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Pricing hooks
// ──────────────────────────────────────────────────

// OnOrderPriced is called after the pricing facade persists an order's
// totals and tax snapshot.
type OnOrderPriced interface {
	Plugin
	OnOrderPriced(ctx context.Context, ord interface{}, totals interface{}) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnEntryPosted is called when a new ledger entry is created.
// Idempotent re-posts of an existing tuple do not fire it.
type OnEntryPosted interface {
	Plugin
	OnEntryPosted(ctx context.Context, entry interface{}) error
}

// OnEntryCorrected is called when a manual correction posts its
// reversal/corrected entry pair.
type OnEntryCorrected interface {
	Plugin
	OnEntryCorrected(ctx context.Context, reversal, corrected interface{}) error
}

// OnWalletApplied is called when wallet funds are applied against dues.
type OnWalletApplied interface {
	Plugin
	OnWalletApplied(ctx context.Context, userID, orderID string, applied interface{}) error
}

// ──────────────────────────────────────────────────
// Billing cycle hooks
// ──────────────────────────────────────────────────

// OnRenewalInvoiced is called when a subscription renewal invoice is
// created (not on idempotent reuse).
type OnRenewalInvoiced interface {
	Plugin
	OnRenewalInvoiced(ctx context.Context, sub interface{}, ord interface{}) error
}

// OnSubscriptionSuspended is called when cutoff enforcement suspends a
// subscription.
type OnSubscriptionSuspended interface {
	Plugin
	OnSubscriptionSuspended(ctx context.Context, sub interface{}) error
}
