// Package billing provides a composable billing and revenue ledger engine
// for Go applications.
//
// Billing is designed as a library, not a service. Import it directly into
// your Go application and drive it from your own transport. It provides:
//
//   - Deterministic discount and tax allocation over order baskets
//   - An append-only, idempotent revenue ledger with frozen attribution
//   - Polygon-based region and sales-agent attribution for reporting
//   - Prepaid wallet application against outstanding dues
//   - A prebill/cutoff subscription billing cycle scheduler
//   - Lifecycle hooks for notifications, webhooks, and reporting
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/kavanet/billing"
//	    "github.com/kavanet/billing/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	eng := billing.New(store)
//
//	// Start (runs store migrations, initializes plugins)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Orders hold priced line items (kits, plans, installation, extras).
// Pricing runs the allocation engine over an order's lines and persists
// the derived adjust lines, tax snapshot rows, and total:
//
//	totals, err := eng.Price(ctx, orderID)
//
// The ledger is append-only. Post writes an entry with a frozen
// region/agent attribution snapshot; posting the same idempotency tuple
// twice returns the original entry:
//
//	entry, created, err := eng.Post(ctx, billing.PostRequest{
//	    AccountID:   acctID,
//	    Type:        account.TypeInvoice,
//	    Amount:      totals.Total,
//	    Description: "Order " + orderID.String(),
//	    ExternalRef: "order:" + orderID.String(),
//	    OrderID:     orderID,
//	})
//
// The billing cycle scheduler is trigger-driven: call RunPrebill and
// EnforceCutoff from your own cron or worker.
package billing
