package billing_test

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavanet/billing"
	"github.com/kavanet/billing/account"
	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/order"
	"github.com/kavanet/billing/region"
	"github.com/kavanet/billing/subscription"
	"github.com/kavanet/billing/types"
)

func invoiceRequest(acct *account.Account, ref string) billing.PostRequest {
	return billing.PostRequest{
		AccountID:   acct.ID,
		Type:        account.TypeInvoice,
		Amount:      types.MustParse("705.28"),
		Description: "Order invoice",
		ExternalRef: ref,
	}
}

func TestPostIsIdempotent(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)
	req := invoiceRequest(acct, "order:test")

	first, created, err := eng.Post(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)

	for i := 0; i < 2; i++ {
		again, created, err := eng.Post(ctx, req)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID.String(), again.ID.String())
	}

	entries, err := s.ListEntriesByRef(ctx, acct.ID, "order:test")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "repeat postings must not create rows")

	// A differing description is a different tuple and posts a new row.
	req.Description = "Order invoice reissued"
	other, created, err := eng.Post(ctx, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID.String(), other.ID.String())

	entries, err = s.ListEntriesByRef(ctx, acct.ID, "order:test")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPostSignConvention(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)

	tests := []struct {
		name   string
		typ    account.EntryType
		amount string
		ok     bool
	}{
		{"invoice positive", account.TypeInvoice, "100", true},
		{"invoice negative", account.TypeInvoice, "-100", false},
		{"payment negative", account.TypePayment, "-100", true},
		{"payment positive", account.TypePayment, "100", false},
		{"credit note negative", account.TypeCreditNote, "-100", true},
		{"credit note positive", account.TypeCreditNote, "100", false},
		{"adjustment either", account.TypeAdjustment, "-5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := eng.Post(ctx, billing.PostRequest{
				AccountID:   acct.ID,
				Type:        tt.typ,
				Amount:      types.MustParse(tt.amount),
				Description: tt.name,
				ExternalRef: "sign:" + tt.name,
			})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, billing.ErrBadEntrySign)
			}
		})
	}
}

func TestPostZeroAmount(t *testing.T) {
	eng, s := newTestEngine(t)
	acct := seedAccount(t, s)

	_, _, err := eng.Post(context.Background(), billing.PostRequest{
		AccountID:   acct.ID,
		Type:        account.TypeAdjustment,
		Amount:      types.Zero(),
		Description: "nothing",
		ExternalRef: "zero",
	})
	assert.ErrorIs(t, err, billing.ErrZeroAmount)
}

func TestPostAttributionChain(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)

	agent := &region.Agent{Entity: types.NewEntity(), ID: id.NewAgentID(), Name: "agent", Active: true}
	require.NoError(t, s.CreateAgent(ctx, agent))
	reg := &region.Region{
		Entity: types.NewEntity(),
		ID:     id.NewRegionID(),
		Name:   "zone",
		Boundary: orb.Polygon{{
			{30, 0}, {40, 0}, {40, 10}, {30, 10}, {30, 0},
		}},
		DefaultAgentID: agent.ID,
	}
	require.NoError(t, s.CreateRegion(ctx, reg))

	manualRegion := &region.Region{Entity: types.NewEntity(), ID: id.NewRegionID(), Name: "manual zone"}
	require.NoError(t, s.CreateRegion(ctx, manualRegion))

	sub := &subscription.Subscription{
		Entity:    types.NewEntity(),
		ID:        id.NewSubscriptionID(),
		UserID:    acct.UserID,
		AccountID: acct.ID,
		RegionID:  manualRegion.ID,
	}
	require.NoError(t, s.CreateSubscription(ctx, sub))

	newOrder := func(mutate func(*order.Order)) id.OrderID {
		ord := &order.Order{
			Entity:    types.NewEntity(),
			ID:        id.NewOrderID(),
			AccountID: acct.ID,
			UserID:    acct.UserID,
		}
		mutate(ord)
		require.NoError(t, s.CreateOrder(ctx, ord))
		return ord.ID
	}

	tests := []struct {
		name       string
		req        billing.PostRequest
		wantSource account.SnapshotSource
		wantRegion id.RegionID
		wantAgent  id.AgentID
	}{
		{
			name: "manual override wins",
			req: billing.PostRequest{
				RegionOverride: manualRegion.ID,
				AgentOverride:  agent.ID,
				OrderID:        newOrder(func(o *order.Order) { o.Coords = &order.Coords{Lat: 5, Lng: 35} }),
			},
			wantSource: account.SourceManualOverride,
			wantRegion: manualRegion.ID,
			wantAgent:  agent.ID,
		},
		{
			name: "order coords resolve auto",
			req: billing.PostRequest{
				OrderID: newOrder(func(o *order.Order) { o.Coords = &order.Coords{Lat: 5, Lng: 35} }),
			},
			wantSource: account.SourceAuto,
			wantRegion: reg.ID,
			wantAgent:  agent.ID, // region default agent
		},
		{
			name: "install coords when order coords miss",
			req: billing.PostRequest{
				OrderID: newOrder(func(o *order.Order) {
					o.Coords = &order.Coords{Lat: 50, Lng: 50} // outside every region
					o.InstallCoords = &order.Coords{Lat: 5, Lng: 35}
				}),
			},
			wantSource: account.SourceInstallSite,
			wantRegion: reg.ID,
			wantAgent:  agent.ID,
		},
		{
			name: "kit stock region",
			req: billing.PostRequest{
				OrderID: newOrder(func(o *order.Order) { o.KitRegionID = reg.ID }),
			},
			wantSource: account.SourceKitStock,
			wantRegion: reg.ID,
			wantAgent:  agent.ID,
		},
		{
			name: "manual region",
			req: billing.PostRequest{
				OrderID: newOrder(func(o *order.Order) { o.ManualRegionID = manualRegion.ID }),
			},
			wantSource: account.SourceManual,
			wantRegion: manualRegion.ID,
			wantAgent:  id.Nil, // manual zone has no default agent
		},
		{
			name: "subscription region fallback",
			req: billing.PostRequest{
				SubscriptionID: sub.ID,
			},
			wantSource: account.SourceSubscription,
			wantRegion: manualRegion.ID,
		},
		{
			name:       "unresolved",
			req:        billing.PostRequest{},
			wantSource: account.SourceUnresolved,
			wantRegion: id.Nil,
		},
		{
			name: "order agent beats region default",
			req: billing.PostRequest{
				OrderID: newOrder(func(o *order.Order) {
					o.Coords = &order.Coords{Lat: 5, Lng: 35}
					o.AgentID = agent.ID
				}),
			},
			wantSource: account.SourceAuto,
			wantRegion: reg.ID,
			wantAgent:  agent.ID,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.AccountID = acct.ID
			req.Type = account.TypeInvoice
			req.Amount = types.FromInt(int64(100 + i))
			req.Description = tt.name
			req.ExternalRef = "attr:" + tt.name

			entry, created, err := eng.Post(ctx, req)
			require.NoError(t, err)
			require.True(t, created)

			assert.Equal(t, tt.wantSource, entry.SnapshotSource)
			assert.Equal(t, tt.wantRegion.String(), entry.RegionSnapshot.String())
			if !tt.wantAgent.IsNil() {
				assert.Equal(t, tt.wantAgent.String(), entry.SalesAgentSnapshot.String())
			}
		})
	}
}

func TestCorrectEntry(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	acct := seedAccount(t, s)

	reg := &region.Region{Entity: types.NewEntity(), ID: id.NewRegionID(), Name: "corrected zone"}
	require.NoError(t, s.CreateRegion(ctx, reg))
	agent := &region.Agent{Entity: types.NewEntity(), ID: id.NewAgentID(), Name: "closer", Active: true}
	require.NoError(t, s.CreateAgent(ctx, agent))

	orig, _, err := eng.Post(ctx, invoiceRequest(acct, "order:correct"))
	require.NoError(t, err)

	reversal, corrected, err := eng.CorrectEntry(ctx, orig.ID, reg.ID, agent.ID)
	require.NoError(t, err)

	assert.Equal(t, orig.AmountUSD.Negate().FormatMajor(), reversal.AmountUSD.FormatMajor())
	assert.Equal(t, orig.ID.String(), reversal.ReversesEntryID.String())
	assert.Equal(t, account.SourceManualCorrection, reversal.SnapshotSource)
	assert.Equal(t, orig.RegionSnapshot.String(), reversal.RegionSnapshot.String(), "reversal keeps the original snapshot")

	assert.Equal(t, orig.AmountUSD.FormatMajor(), corrected.AmountUSD.FormatMajor())
	assert.Equal(t, reg.ID.String(), corrected.RegionSnapshot.String())
	assert.Equal(t, agent.ID.String(), corrected.SalesAgentSnapshot.String())

	// Net outstanding is unchanged: +X -X +X.
	entries, err := s.ListEntriesByRef(ctx, acct.ID, "order:correct")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, orig.AmountUSD.FormatMajor(), account.Outstanding(entries).FormatMajor())

	// The original row itself is untouched.
	stored, err := s.GetEntry(ctx, orig.ID)
	require.NoError(t, err)
	assert.NotEqual(t, account.SourceManualCorrection, stored.SnapshotSource)
}
