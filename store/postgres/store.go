// Package postgres provides a PostgreSQL Store implementation on GORM.
// The ledger idempotency tuple is backed by a unique index on a derived
// key hash, so concurrent duplicate postings fail closed at the database.
package postgres

import (
	"context"
	"errors"
	"time"

	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

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

// Store is the PostgreSQL store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New connects to PostgreSQL with the given DSN.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing GORM handle, for callers that manage the
// connection pool themselves.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

func translate(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return billing.ErrAlreadyExists
	default:
		return err
	}
}

// Order methods

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	return translate(s.db.WithContext(ctx).Create(toOrderModel(o)).Error, billing.ErrOrderNotFound)
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	var m orderModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", orderID.String()).Error; err != nil {
		return nil, translate(err, billing.ErrOrderNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) FindOrderByRef(ctx context.Context, externalRef string) (*order.Order, error) {
	var m orderModel
	if err := s.db.WithContext(ctx).First(&m, "external_ref = ?", externalRef).Error; err != nil {
		return nil, translate(err, billing.ErrOrderNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) UpdateOrder(ctx context.Context, o *order.Order) error {
	res := s.db.WithContext(ctx).Model(&orderModel{}).
		Where("id = ?", o.ID.String()).
		Select("*").Omit("id", "created_at").
		Updates(toOrderModel(o))
	if res.Error != nil {
		return translate(res.Error, billing.ErrOrderNotFound)
	}
	if res.RowsAffected == 0 {
		return billing.ErrOrderNotFound
	}
	return nil
}

func (s *Store) AddOrderLine(ctx context.Context, l *order.Line) error {
	return translate(s.db.WithContext(ctx).Create(toLineModel(*l)).Error, billing.ErrOrderNotFound)
}

func (s *Store) ListOrderLines(ctx context.Context, orderID id.OrderID) ([]order.Line, error) {
	var models []lineModel
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID.String()).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	lines := make([]order.Line, len(models))
	for i := range models {
		lines[i] = models[i].toDomain()
	}
	return lines, nil
}

func (s *Store) ReplaceAdjustLines(ctx context.Context, orderID id.OrderID, lines []order.Line) error {
	err := s.db.WithContext(ctx).
		Where("order_id = ? AND kind = ? AND rule_code <> ''", orderID.String(), string(order.KindAdjust)).
		Delete(&lineModel{}).Error
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := s.db.WithContext(ctx).Create(toLineModel(l)).Error; err != nil {
			return translate(err, billing.ErrOrderNotFound)
		}
	}
	return nil
}

func (s *Store) ReplaceOrderTaxes(ctx context.Context, orderID id.OrderID, rows []tax.OrderTax) error {
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID.String()).
		Delete(&orderTaxModel{}).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.db.WithContext(ctx).Create(toOrderTaxModel(row)).Error; err != nil {
			return translate(err, billing.ErrOrderNotFound)
		}
	}
	return nil
}

func (s *Store) ListOrderTaxes(ctx context.Context, orderID id.OrderID) ([]tax.OrderTax, error) {
	var models []orderTaxModel
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID.String()).
		Order("kind").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	rows := make([]tax.OrderTax, len(models))
	for i := range models {
		rows[i] = models[i].toDomain()
	}
	return rows, nil
}

// Ledger entry methods

func (s *Store) CreateEntry(ctx context.Context, e *account.Entry) error {
	return translate(s.db.WithContext(ctx).Create(toEntryModel(e)).Error, billing.ErrEntryNotFound)
}

func (s *Store) FindEntryByKey(ctx context.Context, key account.Key) (*account.Entry, error) {
	var m entryModel
	if err := s.db.WithContext(ctx).First(&m, "idempotency_hash = ?", key.Hash()).Error; err != nil {
		return nil, translate(err, billing.ErrEntryNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.EntryID) (*account.Entry, error) {
	var m entryModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", entryID.String()).Error; err != nil {
		return nil, translate(err, billing.ErrEntryNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) ListEntriesByRef(ctx context.Context, accountID id.AccountID, externalRef string) ([]*account.Entry, error) {
	var models []entryModel
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND external_ref = ?", accountID.String(), externalRef).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	entries := make([]*account.Entry, len(models))
	for i := range models {
		entries[i] = models[i].toDomain()
	}
	return entries, nil
}

func (s *Store) FindInvoiceForPeriod(ctx context.Context, subID id.SubscriptionID, periodStart, _ time.Time) (*account.Entry, error) {
	var m entryModel
	err := s.db.WithContext(ctx).
		Where("subscription_id = ? AND type = ? AND period_start = ?",
			subID.String(), string(account.TypeInvoice), periodStart).
		First(&m).Error
	if err != nil {
		return nil, translate(err, billing.ErrEntryNotFound)
	}
	return m.toDomain(), nil
}

// Account methods

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	return translate(s.db.WithContext(ctx).Create(toAccountModel(a)).Error, billing.ErrAccountNotFound)
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	var m accountModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", accountID.String()).Error; err != nil {
		return nil, translate(err, billing.ErrAccountNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) GetAccountByUser(ctx context.Context, userID id.UserID) (*account.Account, error) {
	var m accountModel
	if err := s.db.WithContext(ctx).First(&m, "user_id = ?", userID.String()).Error; err != nil {
		return nil, translate(err, billing.ErrAccountNotFound)
	}
	return m.toDomain(), nil
}

// Wallet methods

func (s *Store) GetWallet(ctx context.Context, userID id.UserID) (*wallet.Wallet, error) {
	var m walletModel
	if err := s.db.WithContext(ctx).First(&m, "user_id = ?", userID.String()).Error; err != nil {
		return nil, translate(err, billing.ErrWalletNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) SaveWallet(ctx context.Context, w *wallet.Wallet) error {
	m := toWalletModel(w)
	res := s.db.WithContext(ctx).Model(&walletModel{}).
		Where("user_id = ?", m.UserID).
		Select("balance", "updated_at").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(s.db.WithContext(ctx).Create(m).Error, billing.ErrWalletNotFound)
	}
	return nil
}

// Subscription methods

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	return translate(s.db.WithContext(ctx).Create(toSubscriptionModel(sub)).Error, billing.ErrSubscriptionNotFound)
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", subID.String()).Error; err != nil {
		return nil, translate(err, billing.ErrSubscriptionNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res := s.db.WithContext(ctx).Model(&subscriptionModel{}).
		Where("id = ?", sub.ID.String()).
		Select("*").Omit("id", "created_at").
		Updates(toSubscriptionModel(sub))
	if res.Error != nil {
		return translate(res.Error, billing.ErrSubscriptionNotFound)
	}
	if res.RowsAffected == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

// Discount rule methods

func (s *Store) GetCouponRule(ctx context.Context, code string) (*discount.Rule, error) {
	var m ruleModel
	if err := s.db.WithContext(ctx).First(&m, "code = ?", code).Error; err != nil {
		return nil, translate(err, billing.ErrCouponNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) ListActivePromotions(ctx context.Context) ([]*discount.Rule, error) {
	var models []ruleModel
	err := s.db.WithContext(ctx).
		Where("source = ? AND active", string(discount.SourcePromotion)).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	rules := make([]*discount.Rule, len(models))
	for i := range models {
		rules[i] = models[i].toDomain()
	}
	return rules, nil
}

func (s *Store) CountUserRedemptions(ctx context.Context, ruleID id.ID, userID id.UserID) (int, error) {
	var m redemptionModel
	err := s.db.WithContext(ctx).
		First(&m, "rule_id = ? AND user_id = ?", ruleID.String(), userID.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return m.Count, nil
}

func (s *Store) CreateRule(ctx context.Context, r *discount.Rule) error {
	return translate(s.db.WithContext(ctx).Create(toRuleModel(r)).Error, billing.ErrCouponNotFound)
}

func (s *Store) IncrementRedemption(ctx context.Context, ruleID id.ID, userID id.UserID) error {
	res := s.db.WithContext(ctx).Model(&ruleModel{}).
		Where("id = ?", ruleID.String()).
		UpdateColumn("times_redeemed", gorm.Expr("times_redeemed + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return billing.ErrCouponNotFound
	}

	res = s.db.WithContext(ctx).Model(&redemptionModel{}).
		Where("rule_id = ? AND user_id = ?", ruleID.String(), userID.String()).
		UpdateColumn("count", gorm.Expr("count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.db.WithContext(ctx).Create(&redemptionModel{
			RuleID: ruleID.String(),
			UserID: userID.String(),
			Count:  1,
		}).Error
	}
	return nil
}

// Tax rate methods

func (s *Store) GetTaxRate(ctx context.Context, kind tax.Kind) (*tax.Rate, error) {
	var m taxRateModel
	if err := s.db.WithContext(ctx).First(&m, "kind = ?", string(kind)).Error; err != nil {
		return nil, translate(err, billing.ErrTaxRateNotFound)
	}
	return &tax.Rate{Kind: tax.Kind(m.Kind), Percent: m.Percent}, nil
}

func (s *Store) SaveTaxRate(ctx context.Context, r *tax.Rate) error {
	m := &taxRateModel{Kind: string(r.Kind), Percent: r.Percent}
	res := s.db.WithContext(ctx).Model(&taxRateModel{}).
		Where("kind = ?", m.Kind).
		Select("percent", "updated_at").
		Updates(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.db.WithContext(ctx).Create(m).Error
	}
	return nil
}

// Region/agent methods

func (s *Store) ListRegions(ctx context.Context) ([]*region.Region, error) {
	var models []regionModel
	if err := s.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	regions := make([]*region.Region, len(models))
	for i := range models {
		regions[i] = models[i].toDomain()
	}
	return regions, nil
}

func (s *Store) GetRegion(ctx context.Context, regionID id.RegionID) (*region.Region, error) {
	var m regionModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", regionID.String()).Error; err != nil {
		return nil, translate(err, billing.ErrRegionNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) GetAgent(ctx context.Context, agentID id.AgentID) (*region.Agent, error) {
	var m agentModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", agentID.String()).Error; err != nil {
		return nil, translate(err, billing.ErrAgentNotFound)
	}
	return m.toDomain(), nil
}

func (s *Store) CreateRegion(ctx context.Context, r *region.Region) error {
	return translate(s.db.WithContext(ctx).Create(toRegionModel(r)).Error, billing.ErrRegionNotFound)
}

func (s *Store) CreateAgent(ctx context.Context, a *region.Agent) error {
	return translate(s.db.WithContext(ctx).Create(toAgentModel(a)).Error, billing.ErrAgentNotFound)
}

// InTx runs fn inside one database transaction.
func (s *Store) InTx(ctx context.Context, fn func(store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Core methods

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&orderModel{},
		&lineModel{},
		&orderTaxModel{},
		&entryModel{},
		&accountModel{},
		&walletModel{},
		&subscriptionModel{},
		&ruleModel{},
		&redemptionModel{},
		&taxRateModel{},
		&regionModel{},
		&agentModel{},
	)
}

func (s *Store) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
