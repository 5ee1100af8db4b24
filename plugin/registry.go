package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emission never walks non-implementers.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onOrderPriced           []OnOrderPriced
	onEntryPosted           []OnEntryPosted
	onEntryCorrected        []OnEntryCorrected
	onWalletApplied         []OnWalletApplied
	onRenewalInvoiced       []OnRenewalInvoiced
	onSubscriptionSuspended []OnSubscriptionSuspended
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnOrderPriced); ok {
		r.onOrderPriced = append(r.onOrderPriced, v)
	}
	if v, ok := p.(OnEntryPosted); ok {
		r.onEntryPosted = append(r.onEntryPosted, v)
	}
	if v, ok := p.(OnEntryCorrected); ok {
		r.onEntryCorrected = append(r.onEntryCorrected, v)
	}
	if v, ok := p.(OnWalletApplied); ok {
		r.onWalletApplied = append(r.onWalletApplied, v)
	}
	if v, ok := p.(OnRenewalInvoiced); ok {
		r.onRenewalInvoiced = append(r.onRenewalInvoiced, v)
	}
	if v, ok := p.(OnSubscriptionSuspended); ok {
		r.onSubscriptionSuspended = append(r.onSubscriptionSuspended, v)
	}

	r.logger.Info("plugin registered", "name", p.Name())

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitOrderPriced emits an order priced event.
func (r *Registry) EmitOrderPriced(ctx context.Context, ord, totals interface{}) {
	r.mu.RLock()
	plugins := r.onOrderPriced
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnOrderPriced(ctx, ord, totals)
		}); err != nil {
			r.logger.Warn("plugin OnOrderPriced failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitEntryPosted emits a ledger entry posted event.
func (r *Registry) EmitEntryPosted(ctx context.Context, entry interface{}) {
	r.mu.RLock()
	plugins := r.onEntryPosted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntryPosted(ctx, entry)
		}); err != nil {
			r.logger.Warn("plugin OnEntryPosted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitEntryCorrected emits a manual correction event.
func (r *Registry) EmitEntryCorrected(ctx context.Context, reversal, corrected interface{}) {
	r.mu.RLock()
	plugins := r.onEntryCorrected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEntryCorrected(ctx, reversal, corrected)
		}); err != nil {
			r.logger.Warn("plugin OnEntryCorrected failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitWalletApplied emits a wallet application event.
func (r *Registry) EmitWalletApplied(ctx context.Context, userID, orderID string, applied interface{}) {
	r.mu.RLock()
	plugins := r.onWalletApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWalletApplied(ctx, userID, orderID, applied)
		}); err != nil {
			r.logger.Warn("plugin OnWalletApplied failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitRenewalInvoiced emits a renewal invoiced event.
func (r *Registry) EmitRenewalInvoiced(ctx context.Context, sub, ord interface{}) {
	r.mu.RLock()
	plugins := r.onRenewalInvoiced
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRenewalInvoiced(ctx, sub, ord)
		}); err != nil {
			r.logger.Warn("plugin OnRenewalInvoiced failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitSubscriptionSuspended emits a subscription suspended event.
func (r *Registry) EmitSubscriptionSuspended(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionSuspended
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionSuspended(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionSuspended failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
