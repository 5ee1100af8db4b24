// Package store defines the unified storage interface for the billing
// engine.
package store

import (
	"context"
	"time"

	"github.com/kavanet/billing/account"
	"github.com/kavanet/billing/discount"
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/region"
	"github.com/kavanet/billing/subscription"
	"github.com/kavanet/billing/tax"
	"github.com/kavanet/billing/wallet"
)

// Store is the unified storage interface for all billing entities.
// Instead of embedding sub-interfaces, all methods are declared explicitly
// to avoid naming conflicts.
type Store interface {
	// Order methods
	CreateOrder(ctx context.Context, o *order.Order) error
	GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error)
	FindOrderByRef(ctx context.Context, externalRef string) (*order.Order, error)
	UpdateOrder(ctx context.Context, o *order.Order) error
	AddOrderLine(ctx context.Context, l *order.Line) error
	ListOrderLines(ctx context.Context, orderID id.OrderID) ([]order.Line, error)
	// ReplaceAdjustLines deletes all rule-generated adjust lines for the
	// order and inserts the given ones, keeping repricing idempotent.
	ReplaceAdjustLines(ctx context.Context, orderID id.OrderID, lines []order.Line) error
	// ReplaceOrderTaxes deletes all OrderTax rows for the order and
	// inserts the given snapshot. Delete-and-recreate by design.
	ReplaceOrderTaxes(ctx context.Context, orderID id.OrderID, rows []tax.OrderTax) error
	ListOrderTaxes(ctx context.Context, orderID id.OrderID) ([]tax.OrderTax, error)

	// Ledger entry methods
	// CreateEntry returns ErrAlreadyExists when the idempotency tuple is
	// already posted; backends must enforce it with a uniqueness
	// constraint so concurrent duplicates fail closed.
	CreateEntry(ctx context.Context, e *account.Entry) error
	FindEntryByKey(ctx context.Context, key account.Key) (*account.Entry, error)
	GetEntry(ctx context.Context, entryID id.EntryID) (*account.Entry, error)
	ListEntriesByRef(ctx context.Context, accountID id.AccountID, externalRef string) ([]*account.Entry, error)
	FindInvoiceForPeriod(ctx context.Context, subID id.SubscriptionID, periodStart, periodEnd time.Time) (*account.Entry, error)

	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetAccountByUser(ctx context.Context, userID id.UserID) (*account.Account, error)

	// Wallet methods
	GetWallet(ctx context.Context, userID id.UserID) (*wallet.Wallet, error)
	SaveWallet(ctx context.Context, w *wallet.Wallet) error

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error

	// Discount rule methods
	GetCouponRule(ctx context.Context, code string) (*discount.Rule, error)
	ListActivePromotions(ctx context.Context) ([]*discount.Rule, error)
	CountUserRedemptions(ctx context.Context, ruleID id.ID, userID id.UserID) (int, error)
	CreateRule(ctx context.Context, r *discount.Rule) error
	IncrementRedemption(ctx context.Context, ruleID id.ID, userID id.UserID) error

	// Tax rate methods
	GetTaxRate(ctx context.Context, kind tax.Kind) (*tax.Rate, error)
	SaveTaxRate(ctx context.Context, r *tax.Rate) error

	// Region/agent methods
	ListRegions(ctx context.Context) ([]*region.Region, error)
	GetRegion(ctx context.Context, regionID id.RegionID) (*region.Region, error)
	GetAgent(ctx context.Context, agentID id.AgentID) (*region.Agent, error)
	CreateRegion(ctx context.Context, r *region.Region) error
	CreateAgent(ctx context.Context, a *region.Agent) error

	// InTx runs fn against a transactional view of the store; all writes
	// commit or roll back together. Each public engine operation runs in
	// exactly one such transaction.
	InTx(ctx context.Context, fn func(Store) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
