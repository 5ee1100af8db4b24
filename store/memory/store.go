// Package memory provides an in-memory Store implementation for testing
// and development. All access is serialized with a single mutex; InTx
// runs the callback against the store directly and is therefore not
// transactional — a mid-callback failure leaves earlier writes applied.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kavanet/billing"
	"github.com/kavanet/billing/account"
	"github.com/kavanet/billing/discount"
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/region"
	"github.com/kavanet/billing/store"
	"github.com/kavanet/billing/subscription"
	"github.com/kavanet/billing/tax"
	"github.com/kavanet/billing/wallet"
)

// Store is the in-memory store.
type Store struct {
	mu sync.RWMutex

	orders     map[string]*order.Order
	orderLines map[string][]order.Line
	orderTaxes map[string][]tax.OrderTax

	entries    map[string]*account.Entry
	entryByKey map[string]*account.Entry

	accounts map[string]*account.Account
	wallets  map[string]*wallet.Wallet

	subscriptions map[string]*subscription.Subscription

	rules       map[string]*discount.Rule
	redemptions map[string]int // ruleID + "\x1f" + userID

	taxRates map[tax.Kind]*tax.Rate

	regions map[string]*region.Region
	agents  map[string]*region.Agent
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		orders:        make(map[string]*order.Order),
		orderLines:    make(map[string][]order.Line),
		orderTaxes:    make(map[string][]tax.OrderTax),
		entries:       make(map[string]*account.Entry),
		entryByKey:    make(map[string]*account.Entry),
		accounts:      make(map[string]*account.Account),
		wallets:       make(map[string]*wallet.Wallet),
		subscriptions: make(map[string]*subscription.Subscription),
		rules:         make(map[string]*discount.Rule),
		redemptions:   make(map[string]int),
		taxRates:      make(map[tax.Kind]*tax.Rate),
		regions:       make(map[string]*region.Region),
		agents:        make(map[string]*region.Agent),
	}
}

// Order methods

func (s *Store) CreateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	s.orders[o.ID.String()] = o
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID id.OrderID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.orders[orderID.String()]; ok {
		return o, nil
	}
	return nil, billing.ErrOrderNotFound
}

func (s *Store) FindOrderByRef(_ context.Context, externalRef string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.Ref() == externalRef {
			return o, nil
		}
	}
	return nil, billing.ErrOrderNotFound
}

func (s *Store) UpdateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID.String()]; !exists {
		return billing.ErrOrderNotFound
	}
	s.orders[o.ID.String()] = o
	return nil
}

func (s *Store) AddOrderLine(_ context.Context, l *order.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := l.OrderID.String()
	s.orderLines[key] = append(s.orderLines[key], *l)
	return nil
}

func (s *Store) ListOrderLines(_ context.Context, orderID id.OrderID) ([]order.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.orderLines[orderID.String()]
	out := make([]order.Line, len(lines))
	copy(out, lines)
	return out, nil
}

func (s *Store) ReplaceAdjustLines(_ context.Context, orderID id.OrderID, lines []order.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := orderID.String()
	kept := make([]order.Line, 0, len(s.orderLines[key])+len(lines))
	for _, l := range s.orderLines[key] {
		if l.IsAdjust() && l.RuleCode != "" {
			continue
		}
		kept = append(kept, l)
	}
	kept = append(kept, lines...)
	s.orderLines[key] = kept
	return nil
}

func (s *Store) ReplaceOrderTaxes(_ context.Context, orderID id.OrderID, rows []tax.OrderTax) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]tax.OrderTax, len(rows))
	copy(out, rows)
	s.orderTaxes[orderID.String()] = out
	return nil
}

func (s *Store) ListOrderTaxes(_ context.Context, orderID id.OrderID) ([]tax.OrderTax, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.orderTaxes[orderID.String()]
	out := make([]tax.OrderTax, len(rows))
	copy(out, rows)
	return out, nil
}

// Ledger entry methods

func (s *Store) CreateEntry(_ context.Context, e *account.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := e.Key().Hash()
	if _, exists := s.entryByKey[hash]; exists {
		return billing.ErrAlreadyExists
	}
	s.entries[e.ID.String()] = e
	s.entryByKey[hash] = e
	return nil
}

func (s *Store) FindEntryByKey(_ context.Context, key account.Key) (*account.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entryByKey[key.Hash()]; ok {
		return e, nil
	}
	return nil, billing.ErrEntryNotFound
}

func (s *Store) GetEntry(_ context.Context, entryID id.EntryID) (*account.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[entryID.String()]; ok {
		return e, nil
	}
	return nil, billing.ErrEntryNotFound
}

func (s *Store) ListEntriesByRef(_ context.Context, accountID id.AccountID, externalRef string) ([]*account.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*account.Entry
	for _, e := range s.entries {
		if e.AccountID.String() == accountID.String() && e.ExternalRef == externalRef {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) FindInvoiceForPeriod(_ context.Context, subID id.SubscriptionID, periodStart, _ time.Time) (*account.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Type != account.TypeInvoice || e.SubscriptionID.String() != subID.String() {
			continue
		}
		if e.PeriodStart != nil && e.PeriodStart.Equal(periodStart) {
			return e, nil
		}
	}
	return nil, billing.ErrEntryNotFound
}

// Account methods

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	s.accounts[a.ID.String()] = a
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		return a, nil
	}
	return nil, billing.ErrAccountNotFound
}

func (s *Store) GetAccountByUser(_ context.Context, userID id.UserID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.UserID.String() == userID.String() {
			return a, nil
		}
	}
	return nil, billing.ErrAccountNotFound
}

// Wallet methods

func (s *Store) GetWallet(_ context.Context, userID id.UserID) (*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if w, ok := s.wallets[userID.String()]; ok {
		return w, nil
	}
	return nil, billing.ErrWalletNotFound
}

func (s *Store) SaveWallet(_ context.Context, w *wallet.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallets[w.UserID.String()] = w
	return nil
}

// Subscription methods

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = sub
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return sub, nil
	}
	return nil, billing.ErrSubscriptionNotFound
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return billing.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID.String()] = sub
	return nil
}

// Discount rule methods

func (s *Store) GetCouponRule(_ context.Context, code string) (*discount.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rules {
		if r.Code == code {
			return r, nil
		}
	}
	return nil, billing.ErrCouponNotFound
}

func (s *Store) ListActivePromotions(_ context.Context) ([]*discount.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*discount.Rule
	for _, r := range s.rules {
		if r.Source == discount.SourcePromotion && r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) CountUserRedemptions(_ context.Context, ruleID id.ID, userID id.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.redemptions[ruleID.String()+"\x1f"+userID.String()], nil
}

func (s *Store) CreateRule(_ context.Context, r *discount.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[r.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	s.rules[r.ID.String()] = r
	return nil
}

func (s *Store) IncrementRedemption(_ context.Context, ruleID id.ID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleID.String()]
	if !ok {
		return billing.ErrCouponNotFound
	}
	r.TimesRedeemed++
	s.redemptions[ruleID.String()+"\x1f"+userID.String()]++
	return nil
}

// Tax rate methods

func (s *Store) GetTaxRate(_ context.Context, kind tax.Kind) (*tax.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.taxRates[kind]; ok {
		return r, nil
	}
	return nil, billing.ErrTaxRateNotFound
}

func (s *Store) SaveTaxRate(_ context.Context, r *tax.Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taxRates[r.Kind] = r
	return nil
}

// Region/agent methods

func (s *Store) ListRegions(_ context.Context) ([]*region.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*region.Region, 0, len(s.regions))
	for _, r := range s.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) GetRegion(_ context.Context, regionID id.RegionID) (*region.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.regions[regionID.String()]; ok {
		return r, nil
	}
	return nil, billing.ErrRegionNotFound
}

func (s *Store) GetAgent(_ context.Context, agentID id.AgentID) (*region.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.agents[agentID.String()]; ok {
		return a, nil
	}
	return nil, billing.ErrAgentNotFound
}

func (s *Store) CreateRegion(_ context.Context, r *region.Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.regions[r.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	s.regions[r.ID.String()] = r
	return nil
}

func (s *Store) CreateAgent(_ context.Context, a *region.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[a.ID.String()]; exists {
		return billing.ErrAlreadyExists
	}
	s.agents[a.ID.String()] = a
	return nil
}

// InTx runs fn against the store itself. Writes are not rolled back on
// failure; tests that need rollback behavior use the postgres store.
func (s *Store) InTx(_ context.Context, fn func(store.Store) error) error {
	return fn(s)
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }
