package region

import "math"

// Tag records how a resolution was derived.
type Tag string

const (
	// TagNoCoords means the input coordinates were missing or invalid.
	TagNoCoords Tag = "no_coords"
	// TagNoMatch means no polygon contains the point.
	TagNoMatch Tag = "no_match"
	// TagAuto means exactly one polygon contains the point.
	TagAuto Tag = "auto"
	// TagAutoAmbiguous means multiple overlapping polygons matched and the
	// smallest area won. Smaller regions are assumed more specific.
	TagAutoAmbiguous Tag = "auto_ambiguous"
)

// Resolution is the explicit outcome of a lookup. The resolver is
// advisory for reporting only: it never blocks or fails order processing,
// so there is no error channel — failures degrade to TagNoMatch.
type Resolution struct {
	Region *Region
	Tag    Tag
}

// Resolver resolves coordinates against a fixed set of region polygons.
type Resolver struct {
	regions []*Region
}

// NewResolver creates a resolver over the given regions.
func NewResolver(regions []*Region) *Resolver {
	return &Resolver{regions: regions}
}

// Resolve finds the region containing (lat, lng). Overlapping matches are
// tie-broken by smallest area.
func (r *Resolver) Resolve(lat, lng float64) Resolution {
	if !validCoords(lat, lng) {
		return Resolution{Tag: TagNoCoords}
	}

	var matches []*Region
	for _, reg := range r.regions {
		if reg.Contains(lat, lng) {
			matches = append(matches, reg)
		}
	}

	switch len(matches) {
	case 0:
		return Resolution{Tag: TagNoMatch}
	case 1:
		return Resolution{Region: matches[0], Tag: TagAuto}
	default:
		best := matches[0]
		for _, m := range matches[1:] {
			if m.Area() < best.Area() {
				best = m
			}
		}
		return Resolution{Region: best, Tag: TagAutoAmbiguous}
	}
}

func validCoords(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
