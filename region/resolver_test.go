package region

import (
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/kavanet/billing/id"
)

func square(minLng, minLat, maxLng, maxLat float64) orb.Polygon {
	return orb.Polygon{{
		{minLng, minLat},
		{maxLng, minLat},
		{maxLng, maxLat},
		{minLng, maxLat},
		{minLng, minLat},
	}}
}

func testRegions() (big, small *Region) {
	big = &Region{
		ID:       id.NewRegionID(),
		Name:     "big",
		Boundary: square(30, 0, 40, 10),
	}
	small = &Region{
		ID:       id.NewRegionID(),
		Name:     "small",
		Boundary: square(34, 4, 36, 6),
	}
	return big, small
}

func TestResolveAuto(t *testing.T) {
	big, small := testRegions()
	r := NewResolver([]*Region{big, small})

	res := r.Resolve(1, 31) // inside big only
	if res.Tag != TagAuto {
		t.Fatalf("tag: got %s, want %s", res.Tag, TagAuto)
	}
	if res.Region == nil || res.Region.Name != "big" {
		t.Errorf("expected big region, got %+v", res.Region)
	}
}

func TestResolveAmbiguousSmallestWins(t *testing.T) {
	big, small := testRegions()
	r := NewResolver([]*Region{big, small})

	res := r.Resolve(5, 35) // inside both
	if res.Tag != TagAutoAmbiguous {
		t.Fatalf("tag: got %s, want %s", res.Tag, TagAutoAmbiguous)
	}
	if res.Region == nil || res.Region.Name != "small" {
		t.Errorf("expected smallest region to win, got %+v", res.Region)
	}
}

func TestResolveNoMatch(t *testing.T) {
	big, small := testRegions()
	r := NewResolver([]*Region{big, small})

	res := r.Resolve(50, 50)
	if res.Tag != TagNoMatch {
		t.Errorf("tag: got %s, want %s", res.Tag, TagNoMatch)
	}
	if res.Region != nil {
		t.Errorf("expected no region, got %+v", res.Region)
	}
}

func TestResolveInvalidCoords(t *testing.T) {
	big, small := testRegions()
	r := NewResolver([]*Region{big, small})

	tests := []struct {
		name     string
		lat, lng float64
	}{
		{"null island", 0, 0},
		{"nan lat", math.NaN(), 35},
		{"nan lng", 5, math.NaN()},
		{"lat out of range", 95, 35},
		{"lng out of range", 5, 190},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.lat, tt.lng)
			if res.Tag != TagNoCoords {
				t.Errorf("tag: got %s, want %s", res.Tag, TagNoCoords)
			}
		})
	}
}

func TestResolveEmptyResolver(t *testing.T) {
	r := NewResolver(nil)
	if res := r.Resolve(5, 35); res.Tag != TagNoMatch {
		t.Errorf("tag: got %s, want %s", res.Tag, TagNoMatch)
	}
}

func TestRegionContainsEmptyBoundary(t *testing.T) {
	r := &Region{ID: id.NewRegionID()}
	if r.Contains(5, 35) {
		t.Error("empty boundary must contain nothing")
	}
}
