package billing

import (
	"context"
	"errors"
	"time"

	"github.com/kavanet/billing/account"
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/region"
	"github.com/kavanet/billing/store"
	"github.com/kavanet/billing/subscription"
	"github.com/kavanet/billing/types"
)

// PostRequest describes one ledger posting. The idempotency tuple is
// (AccountID, Type, Amount, Description, ExternalRef); posting the same
// tuple twice returns the first entry unchanged.
type PostRequest struct {
	AccountID   id.AccountID
	Type        account.EntryType
	Amount      types.Money
	Description string
	ExternalRef string

	// Optional links.
	OrderID        id.OrderID
	SubscriptionID id.SubscriptionID
	PaymentRef     string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time

	// RegionOverride and AgentOverride pin the reporting attribution,
	// bypassing the resolution chain.
	RegionOverride id.RegionID
	AgentOverride  id.AgentID
}

// Post writes a ledger entry with frozen attribution snapshots. The
// second return reports whether a new entry was created; false means the
// idempotency tuple was already posted and the existing entry is returned.
func (e *Engine) Post(ctx context.Context, req PostRequest) (*account.Entry, bool, error) {
	if req.AccountID.IsNil() {
		return nil, false, ErrAccountNotFound
	}
	amt := req.Amount.Round()
	if amt.IsZero() {
		return nil, false, ErrZeroAmount
	}
	switch sign := account.SignFor(req.Type); {
	case sign > 0 && amt.IsNegative():
		return nil, false, ErrBadEntrySign
	case sign < 0 && amt.IsPositive():
		return nil, false, ErrBadEntrySign
	}

	regionID, agentID, source := e.resolveAttribution(ctx, req)

	entry := &account.Entry{
		Entity:             types.NewEntity(),
		ID:                 id.NewEntryID(),
		AccountID:          req.AccountID,
		Type:               req.Type,
		AmountUSD:          amt,
		Description:        req.Description,
		ExternalRef:        req.ExternalRef,
		OrderID:            req.OrderID,
		SubscriptionID:     req.SubscriptionID,
		PaymentRef:         req.PaymentRef,
		PeriodStart:        req.PeriodStart,
		PeriodEnd:          req.PeriodEnd,
		RegionSnapshot:     regionID,
		SalesAgentSnapshot: agentID,
		SnapshotSource:     source,
	}

	created := false
	err := e.store.InTx(ctx, func(s store.Store) error {
		existing, err := s.FindEntryByKey(ctx, entry.Key())
		if err == nil {
			entry = existing
			return nil
		}
		if !IsNotFound(err) {
			return err
		}

		if err := s.CreateEntry(ctx, entry); err != nil {
			// A concurrent posting of the same tuple won the race.
			if errors.Is(err, ErrAlreadyExists) {
				existing, ferr := s.FindEntryByKey(ctx, entry.Key())
				if ferr != nil {
					return err
				}
				entry = existing
				return nil
			}
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		e.logger.Info("ledger entry posted",
			"entry_id", entry.ID.String(),
			"account_id", entry.AccountID.String(),
			"type", entry.Type,
			"amount", entry.AmountUSD.FormatMajor(),
			"external_ref", entry.ExternalRef,
			"snapshot_source", entry.SnapshotSource,
		)
		e.plugins.EmitEntryPosted(ctx, entry)
	} else {
		e.logger.Debug("ledger entry already posted",
			"entry_id", entry.ID.String(),
			"external_ref", entry.ExternalRef,
		)
	}

	return entry, created, nil
}

// CorrectEntry posts a reversal of an existing entry plus a corrected
// entry carrying the given attribution, both in one transaction. The
// original row stays untouched; corrections are additive.
func (e *Engine) CorrectEntry(ctx context.Context, entryID id.EntryID, regionID id.RegionID, agentID id.AgentID) (reversal, corrected *account.Entry, err error) {
	orig, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}

	reversal = &account.Entry{
		Entity:             types.NewEntity(),
		ID:                 id.NewEntryID(),
		AccountID:          orig.AccountID,
		Type:               orig.Type,
		AmountUSD:          orig.AmountUSD.Negate(),
		Description:        orig.Description + " (reversal)",
		ExternalRef:        orig.ExternalRef,
		OrderID:            orig.OrderID,
		SubscriptionID:     orig.SubscriptionID,
		PaymentRef:         orig.PaymentRef,
		PeriodStart:        orig.PeriodStart,
		PeriodEnd:          orig.PeriodEnd,
		RegionSnapshot:     orig.RegionSnapshot,
		SalesAgentSnapshot: orig.SalesAgentSnapshot,
		SnapshotSource:     account.SourceManualCorrection,
		ReversesEntryID:    orig.ID,
	}
	corrected = &account.Entry{
		Entity:             types.NewEntity(),
		ID:                 id.NewEntryID(),
		AccountID:          orig.AccountID,
		Type:               orig.Type,
		AmountUSD:          orig.AmountUSD,
		Description:        orig.Description + " (corrected)",
		ExternalRef:        orig.ExternalRef,
		OrderID:            orig.OrderID,
		SubscriptionID:     orig.SubscriptionID,
		PaymentRef:         orig.PaymentRef,
		PeriodStart:        orig.PeriodStart,
		PeriodEnd:          orig.PeriodEnd,
		RegionSnapshot:     regionID,
		SalesAgentSnapshot: agentID,
		SnapshotSource:     account.SourceManualCorrection,
	}

	err = e.store.InTx(ctx, func(s store.Store) error {
		if err := s.CreateEntry(ctx, reversal); err != nil {
			return err
		}
		return s.CreateEntry(ctx, corrected)
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.Info("ledger entry corrected",
		"original_id", orig.ID.String(),
		"reversal_id", reversal.ID.String(),
		"corrected_id", corrected.ID.String(),
		"region_snapshot", regionID.String(),
	)
	e.plugins.EmitEntryCorrected(ctx, reversal, corrected)

	return reversal, corrected, nil
}

// resolveAttribution walks the attribution chain for a posting and
// returns the frozen region/agent snapshot plus its provenance. The
// chain is advisory: lookups that fail fall through to the next source,
// and a fully exhausted chain posts as unresolved rather than erroring.
func (e *Engine) resolveAttribution(ctx context.Context, req PostRequest) (id.RegionID, id.AgentID, account.SnapshotSource) {
	var (
		ord *order.Order
		sub = e.loadSubForAttribution(ctx, req)
	)
	if !req.OrderID.IsNil() {
		if o, err := e.store.GetOrder(ctx, req.OrderID); err == nil {
			ord = o
			if sub == nil && !o.SubscriptionID.IsNil() {
				if s, err := e.store.GetSubscription(ctx, o.SubscriptionID); err == nil {
					sub = s
				}
			}
		} else {
			e.logger.Debug("attribution order lookup failed",
				"order_id", req.OrderID.String(), "error", err)
		}
	}

	regionID, source := e.resolveRegion(ctx, req, ord, sub)
	agentID := e.resolveAgent(ctx, req, ord, sub, regionID)
	return regionID, agentID, source
}

func (e *Engine) loadSubForAttribution(ctx context.Context, req PostRequest) *subscription.Subscription {
	if req.SubscriptionID.IsNil() {
		return nil
	}
	s, err := e.store.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		e.logger.Debug("attribution subscription lookup failed",
			"subscription_id", req.SubscriptionID.String(), "error", err)
		return nil
	}
	return s
}

func (e *Engine) resolveRegion(ctx context.Context, req PostRequest, ord *order.Order, sub *subscription.Subscription) (id.RegionID, account.SnapshotSource) {
	if !req.RegionOverride.IsNil() {
		return req.RegionOverride, account.SourceManualOverride
	}

	if ord != nil {
		if ord.Coords != nil {
			if res := e.resolveCoords(ctx, *ord.Coords); res.Region != nil {
				src := account.SourceAuto
				if res.Tag == region.TagAutoAmbiguous {
					src = account.SourceAutoAmbiguous
				}
				return res.Region.ID, src
			}
		}
		if ord.InstallCoords != nil {
			if res := e.resolveCoords(ctx, *ord.InstallCoords); res.Region != nil {
				return res.Region.ID, account.SourceInstallSite
			}
		}
		if !ord.KitRegionID.IsNil() {
			return ord.KitRegionID, account.SourceKitStock
		}
		if !ord.ManualRegionID.IsNil() {
			return ord.ManualRegionID, account.SourceManual
		}
	}

	if sub != nil && !sub.RegionID.IsNil() {
		return sub.RegionID, account.SourceSubscription
	}

	return id.Nil, account.SourceUnresolved
}

func (e *Engine) resolveAgent(ctx context.Context, req PostRequest, ord *order.Order, sub *subscription.Subscription, regionID id.RegionID) id.AgentID {
	if !req.AgentOverride.IsNil() {
		return req.AgentOverride
	}
	if ord != nil && !ord.AgentID.IsNil() {
		return ord.AgentID
	}
	if sub != nil && !sub.AgentID.IsNil() {
		return sub.AgentID
	}
	if !regionID.IsNil() {
		if reg, err := e.store.GetRegion(ctx, regionID); err == nil {
			return reg.DefaultAgentID
		}
	}
	return id.Nil
}

// resolveCoords runs the polygon resolver over the stored regions. A
// region listing failure degrades to no match.
func (e *Engine) resolveCoords(ctx context.Context, c order.Coords) region.Resolution {
	regions, err := e.store.ListRegions(ctx)
	if err != nil {
		e.logger.Warn("region listing failed, attribution degrades", "error", err)
		return region.Resolution{Tag: region.TagNoMatch}
	}
	return region.NewResolver(regions).Resolve(c.Lat, c.Lng)
}
