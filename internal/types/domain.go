// Package types holds the domain records shared by every stage of the
// fire-to-zip pipeline, along with the error taxonomy.
package types

import (
	"fmt"
	"math"
	"sort"
)

// DetectionPoint is a single active-fire observation from the FIRMS feed.
type DetectionPoint struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Confidence int     `json:"confidence"`
}

// RegionBounds is the rectangular area of interest plus the minimum
// confidence a detection must report to be kept. Edges are exclusive,
// the confidence check is inclusive.
type RegionBounds struct {
	LatLow        float64 `json:"lat_low"`
	LatHigh       float64 `json:"lat_high"`
	LonLow        float64 `json:"lon_low"`
	LonHigh       float64 `json:"lon_high"`
	MinConfidence int     `json:"min_confidence"`
}

// CaliforniaBounds approximates California as a rectangle:
// 32°32′N to 42°N, 114°8′W to 124°26′W.
func CaliforniaBounds() RegionBounds {
	return RegionBounds{
		LatLow:        32,
		LatHigh:       42,
		LonLow:        -124,
		LonHigh:       -114,
		MinConfidence: 50,
	}
}

// Validate reports an InvalidArgument error when an axis is empty or inverted.
func (b RegionBounds) Validate() error {
	if math.IsNaN(b.LatLow) || math.IsNaN(b.LatHigh) || b.LatLow >= b.LatHigh {
		return NewInvalidArgument(fmt.Sprintf("latitude bounds must satisfy low < high, got [%v, %v]", b.LatLow, b.LatHigh))
	}
	if math.IsNaN(b.LonLow) || math.IsNaN(b.LonHigh) || b.LonLow >= b.LonHigh {
		return NewInvalidArgument(fmt.Sprintf("longitude bounds must satisfy low < high, got [%v, %v]", b.LonLow, b.LonHigh))
	}
	return nil
}

// Contains applies the region predicate to a detection.
func (b RegionBounds) Contains(d DetectionPoint) bool {
	return d.Latitude > b.LatLow &&
		d.Latitude < b.LatHigh &&
		d.Longitude > b.LonLow &&
		d.Longitude < b.LonHigh &&
		d.Confidence >= b.MinConfidence
}

// PostalArea is one row of the postal code reference table, reduced to
// its centroid.
type PostalArea struct {
	ZIP       string  `json:"zip"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AffectedAreaSet is the set of postal codes near at least one detection.
type AffectedAreaSet map[string]struct{}

// NewAffectedAreaSet returns an empty set.
func NewAffectedAreaSet() AffectedAreaSet {
	return make(AffectedAreaSet)
}

// Add inserts a postal code.
func (s AffectedAreaSet) Add(zip string) {
	s[zip] = struct{}{}
}

// Has reports membership.
func (s AffectedAreaSet) Has(zip string) bool {
	_, ok := s[zip]
	return ok
}

// Union merges other into s.
func (s AffectedAreaSet) Union(other AffectedAreaSet) {
	for zip := range other {
		s[zip] = struct{}{}
	}
}

// Sorted returns the members in lexical order, for presentation only.
func (s AffectedAreaSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for zip := range s {
		out = append(out, zip)
	}
	sort.Strings(out)
	return out
}
