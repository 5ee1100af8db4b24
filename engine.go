package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/kavanet/billing/plugin"
	"github.com/kavanet/billing/store"
	"github.com/kavanet/billing/tax"
)

// Config holds the billing-cycle configuration.
type Config struct {
	// PrebillLeadDays is how many days before a subscription's due date
	// its renewal invoice is created.
	PrebillLeadDays int
	// CutoffDaysBeforeAnchor positions the cutoff day relative to the
	// next billing date.
	CutoffDaysBeforeAnchor int
	// AutoSuspendOnCutoff suspends unpaid subscriptions at cutoff.
	AutoSuspendOnCutoff bool
	// InvoiceStartDate, when set, floors the prebill window: periods due
	// before it are never invoiced.
	InvoiceStartDate *time.Time
}

// DefaultConfig returns the stock billing-cycle configuration.
func DefaultConfig() Config {
	return Config{
		PrebillLeadDays:        7,
		CutoffDaysBeforeAnchor: 0,
		AutoSuspendOnCutoff:    true,
	}
}

// Engine is the billing and revenue ledger engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	config Config
	policy *tax.Policy // explicit override; nil means read from the store
	clock  func() time.Time
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		config:  DefaultConfig(),
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithConfig sets the billing-cycle configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithTaxPolicy pins the tax policy instead of reading rate rows from the
// store.
func WithTaxPolicy(p tax.Policy) Option {
	return func(e *Engine) {
		e.policy = &p
	}
}

// WithClock sets the time source. Cycle math compares calendar days, so
// tests inject fixed clocks here.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("billing engine started",
		"prebill_lead_days", e.config.PrebillLeadDays,
		"cutoff_days", e.config.CutoffDaysBeforeAnchor,
		"auto_suspend", e.config.AutoSuspendOnCutoff,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the underlying store for direct access.
func (e *Engine) Store() store.Store { return e.store }

// today returns the current UTC calendar date.
func (e *Engine) today() time.Time {
	t := e.clock().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// taxPolicy builds the effective tax policy: the pinned override if set,
// otherwise the stored rate rows with the documented defaults filled in.
// A missing rate row is a visible, logged default, not a silent one.
func (e *Engine) taxPolicy(ctx context.Context) tax.Policy {
	if e.policy != nil {
		return *e.policy
	}

	policy := tax.Default()
	if vat, err := e.store.GetTaxRate(ctx, tax.KindVAT); err == nil {
		policy.VATPercent = vat.Percent
	} else {
		e.logger.Warn("tax rate not configured, applying default",
			"kind", tax.KindVAT,
			"default_percent", policy.VATPercent,
		)
	}
	if excise, err := e.store.GetTaxRate(ctx, tax.KindExcise); err == nil {
		policy.ExcisePercent = excise.Percent
	} else {
		e.logger.Warn("tax rate not configured, applying default",
			"kind", tax.KindExcise,
			"default_percent", policy.ExcisePercent,
		)
	}
	return policy
}
