package postgres

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/kavanet/billing/account"
	"github.com/kavanet/billing/discount"
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/region"
	"github.com/kavanet/billing/subscription"
	"github.com/kavanet/billing/tax"
	"github.com/kavanet/billing/types"
	"github.com/kavanet/billing/wallet"
)

// Database models. Domain values round-trip through these; complex
// members (scope sets, polygon boundaries, target filters) serialize to
// JSONB columns.

type orderModel struct {
	ID                    string  `gorm:"primaryKey"`
	AccountID             string  `gorm:"index"`
	UserID                string  `gorm:"index"`
	SubscriptionID        *string `gorm:"index"`
	Status                string
	PaymentStatus         string
	TotalPrice            *decimal.Decimal `gorm:"type:numeric(20,6)"`
	IsSubscriptionRenewal bool
	CouponCode            string
	TaxExempt             bool
	ExternalRef           string `gorm:"index"`
	CoordsLat             *float64
	CoordsLng             *float64
	InstallLat            *float64
	InstallLng            *float64
	KitRegionID           *string
	ManualRegionID        *string
	AgentID               *string
	PaymentHoldUntil      *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (orderModel) TableName() string { return "billing_orders" }

type lineModel struct {
	ID          string `gorm:"primaryKey"`
	OrderID     string `gorm:"index"`
	Kind        string
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal `gorm:"type:numeric(20,6)"`
	Scopes      datatypes.JSON
	RuleCode    string
	PlanRef     string
	ExtraRef    string
}

func (lineModel) TableName() string { return "billing_order_lines" }

type orderTaxModel struct {
	ID      string `gorm:"primaryKey"`
	OrderID string `gorm:"index"`
	Kind    string
	Percent decimal.Decimal `gorm:"type:numeric(10,4)"`
	Amount  decimal.Decimal `gorm:"type:numeric(20,6)"`
}

func (orderTaxModel) TableName() string { return "billing_order_taxes" }

type entryModel struct {
	ID                 string `gorm:"primaryKey"`
	AccountID          string `gorm:"index:idx_billing_entries_account_ref"`
	Type               string
	AmountUSD          decimal.Decimal `gorm:"type:numeric(20,6)"`
	Description        string
	ExternalRef        string `gorm:"index:idx_billing_entries_account_ref"`
	OrderID            *string
	SubscriptionID     *string `gorm:"index"`
	PaymentRef         string
	PeriodStart        *time.Time
	PeriodEnd          *time.Time
	RegionSnapshot     *string
	SalesAgentSnapshot *string
	SnapshotSource     string
	ReversesEntryID    *string

	// IdempotencyHash is the canonical hash of the posting tuple. The
	// unique index makes concurrent duplicate postings fail closed.
	IdempotencyHash string `gorm:"uniqueIndex"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (entryModel) TableName() string { return "billing_entries" }

type accountModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"uniqueIndex"`
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (accountModel) TableName() string { return "billing_accounts" }

type walletModel struct {
	ID        string          `gorm:"primaryKey"`
	UserID    string          `gorm:"uniqueIndex"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,6)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (walletModel) TableName() string { return "billing_wallets" }

type subscriptionModel struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index"`
	AccountID       string `gorm:"index"`
	PlanRef         string
	PlanName        string
	PlanPrice       decimal.Decimal `gorm:"type:numeric(20,6)"`
	Cycle           string
	Status          string `gorm:"index"`
	NextBillingDate time.Time
	LastBilledAt    *time.Time
	RegionID        *string
	AgentID         *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (subscriptionModel) TableName() string { return "billing_subscriptions" }

type ruleModel struct {
	ID              string `gorm:"primaryKey"`
	Code            string `gorm:"uniqueIndex"`
	Name            string
	Source          string `gorm:"index"`
	Type            string
	Percent         decimal.Decimal `gorm:"type:numeric(10,4)"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,6)"`
	Scopes          datatypes.JSON
	TargetPlanRefs  datatypes.JSON
	TargetExtraRefs datatypes.JSON
	Active          bool
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	MaxRedemptions  int
	PerUserLimit    int
	TimesRedeemed   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ruleModel) TableName() string { return "billing_discount_rules" }

type redemptionModel struct {
	RuleID string `gorm:"primaryKey"`
	UserID string `gorm:"primaryKey"`
	Count  int
}

func (redemptionModel) TableName() string { return "billing_redemptions" }

type taxRateModel struct {
	Kind      string          `gorm:"primaryKey"`
	Percent   decimal.Decimal `gorm:"type:numeric(10,4)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (taxRateModel) TableName() string { return "billing_tax_rates" }

type regionModel struct {
	ID             string `gorm:"primaryKey"`
	Name           string
	Boundary       datatypes.JSON
	DefaultAgentID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (regionModel) TableName() string { return "billing_regions" }

type agentModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	RegionID  *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (agentModel) TableName() string { return "billing_agents" }

// Conversions

func optID(i id.ID) *string {
	if i.IsNil() {
		return nil
	}
	s := i.String()
	return &s
}

func parseOptID(s *string) id.ID {
	if s == nil || *s == "" {
		return id.Nil
	}
	parsed, err := id.Parse(*s)
	if err != nil {
		return id.Nil
	}
	return parsed
}

func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func toOrderModel(o *order.Order) *orderModel {
	m := &orderModel{
		ID:                    o.ID.String(),
		AccountID:             o.AccountID.String(),
		UserID:                o.UserID.String(),
		SubscriptionID:        optID(o.SubscriptionID),
		Status:                string(o.Status),
		PaymentStatus:         string(o.PaymentStatus),
		IsSubscriptionRenewal: o.IsSubscriptionRenewal,
		CouponCode:            o.CouponCode,
		TaxExempt:             o.TaxExempt,
		ExternalRef:           o.Ref(),
		KitRegionID:           optID(o.KitRegionID),
		ManualRegionID:        optID(o.ManualRegionID),
		AgentID:               optID(o.AgentID),
		PaymentHoldUntil:      o.PaymentHoldUntil,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
	if o.TotalPrice != nil {
		d := o.TotalPrice.Decimal()
		m.TotalPrice = &d
	}
	if o.Coords != nil {
		m.CoordsLat, m.CoordsLng = &o.Coords.Lat, &o.Coords.Lng
	}
	if o.InstallCoords != nil {
		m.InstallLat, m.InstallLng = &o.InstallCoords.Lat, &o.InstallCoords.Lng
	}
	return m
}

func (m *orderModel) toDomain() *order.Order {
	o := &order.Order{
		ID:                    id.MustParse(m.ID),
		AccountID:             id.MustParse(m.AccountID),
		UserID:                id.MustParse(m.UserID),
		SubscriptionID:        parseOptID(m.SubscriptionID),
		Status:                order.Status(m.Status),
		PaymentStatus:         order.PaymentStatus(m.PaymentStatus),
		IsSubscriptionRenewal: m.IsSubscriptionRenewal,
		CouponCode:            m.CouponCode,
		TaxExempt:             m.TaxExempt,
		ExternalRef:           m.ExternalRef,
		KitRegionID:           parseOptID(m.KitRegionID),
		ManualRegionID:        parseOptID(m.ManualRegionID),
		AgentID:               parseOptID(m.AgentID),
		PaymentHoldUntil:      m.PaymentHoldUntil,
	}
	o.CreatedAt, o.UpdatedAt = m.CreatedAt, m.UpdatedAt
	if m.TotalPrice != nil {
		t := types.FromDecimal(*m.TotalPrice)
		o.TotalPrice = &t
	}
	if m.CoordsLat != nil && m.CoordsLng != nil {
		o.Coords = &order.Coords{Lat: *m.CoordsLat, Lng: *m.CoordsLng}
	}
	if m.InstallLat != nil && m.InstallLng != nil {
		o.InstallCoords = &order.Coords{Lat: *m.InstallLat, Lng: *m.InstallLng}
	}
	return o
}

func toLineModel(l order.Line) *lineModel {
	return &lineModel{
		ID:          l.ID.String(),
		OrderID:     l.OrderID.String(),
		Kind:        string(l.Kind),
		Description: l.Description,
		Quantity:    l.Quantity,
		UnitPrice:   l.UnitPrice.Decimal(),
		Scopes:      mustJSON(l.Scopes),
		RuleCode:    l.RuleCode,
		PlanRef:     l.PlanRef,
		ExtraRef:    l.ExtraRef,
	}
}

func (m *lineModel) toDomain() order.Line {
	l := order.Line{
		ID:          id.MustParse(m.ID),
		OrderID:     id.MustParse(m.OrderID),
		Kind:        order.LineKind(m.Kind),
		Description: m.Description,
		Quantity:    m.Quantity,
		UnitPrice:   types.FromDecimal(m.UnitPrice),
		RuleCode:    m.RuleCode,
		PlanRef:     m.PlanRef,
		ExtraRef:    m.ExtraRef,
	}
	_ = json.Unmarshal(m.Scopes, &l.Scopes)
	return l
}

func toOrderTaxModel(t tax.OrderTax) *orderTaxModel {
	return &orderTaxModel{
		ID:      t.ID.String(),
		OrderID: t.OrderID.String(),
		Kind:    string(t.Kind),
		Percent: t.Percent,
		Amount:  t.Amount.Decimal(),
	}
}

func (m *orderTaxModel) toDomain() tax.OrderTax {
	return tax.OrderTax{
		ID:      id.MustParse(m.ID),
		OrderID: id.MustParse(m.OrderID),
		Kind:    tax.Kind(m.Kind),
		Percent: m.Percent,
		Amount:  types.FromDecimal(m.Amount),
	}
}

func toEntryModel(e *account.Entry) *entryModel {
	return &entryModel{
		ID:                 e.ID.String(),
		AccountID:          e.AccountID.String(),
		Type:               string(e.Type),
		AmountUSD:          e.AmountUSD.Decimal(),
		Description:        e.Description,
		ExternalRef:        e.ExternalRef,
		OrderID:            optID(e.OrderID),
		SubscriptionID:     optID(e.SubscriptionID),
		PaymentRef:         e.PaymentRef,
		PeriodStart:        e.PeriodStart,
		PeriodEnd:          e.PeriodEnd,
		RegionSnapshot:     optID(e.RegionSnapshot),
		SalesAgentSnapshot: optID(e.SalesAgentSnapshot),
		SnapshotSource:     string(e.SnapshotSource),
		ReversesEntryID:    optID(e.ReversesEntryID),
		IdempotencyHash:    e.Key().Hash(),
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func (m *entryModel) toDomain() *account.Entry {
	e := &account.Entry{
		ID:                 id.MustParse(m.ID),
		AccountID:          id.MustParse(m.AccountID),
		Type:               account.EntryType(m.Type),
		AmountUSD:          types.FromDecimal(m.AmountUSD),
		Description:        m.Description,
		ExternalRef:        m.ExternalRef,
		OrderID:            parseOptID(m.OrderID),
		SubscriptionID:     parseOptID(m.SubscriptionID),
		PaymentRef:         m.PaymentRef,
		PeriodStart:        m.PeriodStart,
		PeriodEnd:          m.PeriodEnd,
		RegionSnapshot:     parseOptID(m.RegionSnapshot),
		SalesAgentSnapshot: parseOptID(m.SalesAgentSnapshot),
		SnapshotSource:     account.SnapshotSource(m.SnapshotSource),
		ReversesEntryID:    parseOptID(m.ReversesEntryID),
	}
	e.CreatedAt, e.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return e
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:        a.ID.String(),
		UserID:    a.UserID.String(),
		Name:      a.Name,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (m *accountModel) toDomain() *account.Account {
	a := &account.Account{
		ID:     id.MustParse(m.ID),
		UserID: id.MustParse(m.UserID),
		Name:   m.Name,
	}
	a.CreatedAt, a.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return a
}

func toWalletModel(w *wallet.Wallet) *walletModel {
	return &walletModel{
		ID:        w.ID.String(),
		UserID:    w.UserID.String(),
		Balance:   w.Balance.Decimal(),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func (m *walletModel) toDomain() *wallet.Wallet {
	w := &wallet.Wallet{
		ID:      id.MustParse(m.ID),
		UserID:  id.MustParse(m.UserID),
		Balance: types.FromDecimal(m.Balance),
	}
	w.CreatedAt, w.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return w
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:              s.ID.String(),
		UserID:          s.UserID.String(),
		AccountID:       s.AccountID.String(),
		PlanRef:         s.PlanRef,
		PlanName:        s.PlanName,
		PlanPrice:       s.PlanPrice.Decimal(),
		Cycle:           string(s.Cycle),
		Status:          string(s.Status),
		NextBillingDate: s.NextBillingDate,
		LastBilledAt:    s.LastBilledAt,
		RegionID:        optID(s.RegionID),
		AgentID:         optID(s.AgentID),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func (m *subscriptionModel) toDomain() *subscription.Subscription {
	s := &subscription.Subscription{
		ID:              id.MustParse(m.ID),
		UserID:          id.MustParse(m.UserID),
		AccountID:       id.MustParse(m.AccountID),
		PlanRef:         m.PlanRef,
		PlanName:        m.PlanName,
		PlanPrice:       types.FromDecimal(m.PlanPrice),
		Cycle:           subscription.Cycle(m.Cycle),
		Status:          subscription.Status(m.Status),
		NextBillingDate: m.NextBillingDate,
		LastBilledAt:    m.LastBilledAt,
		RegionID:        parseOptID(m.RegionID),
		AgentID:         parseOptID(m.AgentID),
	}
	s.CreatedAt, s.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return s
}

func toRuleModel(r *discount.Rule) *ruleModel {
	return &ruleModel{
		ID:              r.ID.String(),
		Code:            r.Code,
		Name:            r.Name,
		Source:          string(r.Source),
		Type:            string(r.Type),
		Percent:         r.Percent,
		Amount:          r.Amount.Decimal(),
		Scopes:          mustJSON(r.Scopes),
		TargetPlanRefs:  mustJSON(r.TargetPlanRefs),
		TargetExtraRefs: mustJSON(r.TargetExtraRefs),
		Active:          r.Active,
		ValidFrom:       r.ValidFrom,
		ValidUntil:      r.ValidUntil,
		MaxRedemptions:  r.MaxRedemptions,
		PerUserLimit:    r.PerUserLimit,
		TimesRedeemed:   r.TimesRedeemed,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (m *ruleModel) toDomain() *discount.Rule {
	r := &discount.Rule{
		ID:             id.MustParse(m.ID),
		Code:           m.Code,
		Name:           m.Name,
		Source:         discount.Source(m.Source),
		Type:           discount.Type(m.Type),
		Percent:        m.Percent,
		Amount:         types.FromDecimal(m.Amount),
		Active:         m.Active,
		ValidFrom:      m.ValidFrom,
		ValidUntil:     m.ValidUntil,
		MaxRedemptions: m.MaxRedemptions,
		PerUserLimit:   m.PerUserLimit,
		TimesRedeemed:  m.TimesRedeemed,
	}
	_ = json.Unmarshal(m.Scopes, &r.Scopes)
	_ = json.Unmarshal(m.TargetPlanRefs, &r.TargetPlanRefs)
	_ = json.Unmarshal(m.TargetExtraRefs, &r.TargetExtraRefs)
	r.CreatedAt, r.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return r
}

func toRegionModel(r *region.Region) *regionModel {
	return &regionModel{
		ID:             r.ID.String(),
		Name:           r.Name,
		Boundary:       mustJSON(r.Boundary),
		DefaultAgentID: optID(r.DefaultAgentID),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (m *regionModel) toDomain() *region.Region {
	r := &region.Region{
		ID:             id.MustParse(m.ID),
		Name:           m.Name,
		DefaultAgentID: parseOptID(m.DefaultAgentID),
	}
	var boundary orb.Polygon
	if err := json.Unmarshal(m.Boundary, &boundary); err == nil {
		r.Boundary = boundary
	}
	r.CreatedAt, r.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return r
}

func toAgentModel(a *region.Agent) *agentModel {
	return &agentModel{
		ID:        a.ID.String(),
		Name:      a.Name,
		RegionID:  optID(a.RegionID),
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (m *agentModel) toDomain() *region.Agent {
	a := &region.Agent{
		ID:       id.MustParse(m.ID),
		Name:     m.Name,
		RegionID: parseOptID(m.RegionID),
		Active:   m.Active,
	}
	a.CreatedAt, a.UpdatedAt = m.CreatedAt, m.UpdatedAt
	return a
}
