// Package region provides sales regions, sales agents, and the advisory
// point-in-polygon resolver used to annotate ledger rows for reporting.
package region

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/kavanet/billing/id"
	"github.com/kavanet/billing/types"
)

// Region is a sales region bounded by a polygon.
type Region struct {
	types.Entity
	ID   id.RegionID `json:"id"`
	Name string      `json:"name"`

	// Boundary in WGS84 lng/lat order (orb convention).
	Boundary orb.Polygon `json:"boundary"`

	// DefaultAgentID is the region's designated primary agent, the last
	// stop of the sales-agent resolution chain.
	DefaultAgentID id.AgentID `json:"default_agent_id,omitempty"`
}

// Contains reports whether the region's boundary contains the point.
func (r *Region) Contains(lat, lng float64) bool {
	if len(r.Boundary) == 0 {
		return false
	}
	return planar.PolygonContains(r.Boundary, orb.Point{lng, lat})
}

// Area returns the planar area of the boundary, used for the
// smallest-area tie-break between overlapping regions.
func (r *Region) Area() float64 {
	return planar.Area(r.Boundary)
}

// Agent is a sales agent referenced by attribution snapshots.
type Agent struct {
	types.Entity
	ID       id.AgentID  `json:"id"`
	Name     string      `json:"name"`
	RegionID id.RegionID `json:"region_id,omitempty"`
	Active   bool        `json:"active"`
}
