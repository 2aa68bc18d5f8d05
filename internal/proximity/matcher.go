// Package proximity finds the postal areas whose centroid lies within a
// radius of at least one detection.
//
// Three strategies produce identical sets:
//
//	scan      nested loop over detections × postal areas
//	index     R-tree prefilter over the postal centroids, exact refine
//	parallel  postal table split across workers, partial sets unioned
package proximity

import (
	"fmt"
	"math"
	"runtime"

	"github.com/thomhuang/FireZipCodes/internal/geo"
	"github.com/thomhuang/FireZipCodes/internal/types"
)

// Strategy names a matching algorithm.
type Strategy string

const (
	StrategyScan     Strategy = "scan"
	StrategyIndex    Strategy = "index"
	StrategyParallel Strategy = "parallel"
)

// ValidateRadius rejects non-positive and non-finite radii.
func ValidateRadius(radiusKM float64) error {
	if math.IsNaN(radiusKM) || math.IsInf(radiusKM, 0) || radiusKM <= 0 {
		return types.NewInvalidArgument(fmt.Sprintf("radius must be a positive number of kilometers, got %v", radiusKM))
	}
	return nil
}

func within(d types.DetectionPoint, a types.PostalArea, radiusKM float64) bool {
	return geo.Distance(
		geo.Coord{Lat: d.Latitude, Lon: d.Longitude},
		geo.Coord{Lat: a.Latitude, Lon: a.Longitude},
	) <= radiusKM
}

// Match is the reference scan: every detection against every postal area,
// O(len(detections) × len(areas)) distance evaluations.
func Match(detections []types.DetectionPoint, areas []types.PostalArea, radiusKM float64) (types.AffectedAreaSet, error) {
	if err := ValidateRadius(radiusKM); err != nil {
		return nil, err
	}
	return scan(detections, areas, radiusKM), nil
}

func scan(detections []types.DetectionPoint, areas []types.PostalArea, radiusKM float64) types.AffectedAreaSet {
	affected := types.NewAffectedAreaSet()
	for _, d := range detections {
		for _, a := range areas {
			if within(d, a, radiusKM) {
				affected.Add(a.ZIP)
			}
		}
	}
	return affected
}

// Matcher runs one strategy against a reference table loaded once.
type Matcher struct {
	strategy Strategy
	workers  int
	areas    []types.PostalArea
	index    *Index
}

// NewMatcher prepares a Matcher over areas. workers only applies to the
// parallel strategy; values below one mean runtime.NumCPU().
func NewMatcher(strategy Strategy, workers int, areas []types.PostalArea) (*Matcher, error) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	m := &Matcher{strategy: strategy, workers: workers, areas: areas}

	switch strategy {
	case StrategyScan, StrategyParallel:
	case StrategyIndex:
		m.index = NewIndex(areas)
	default:
		return nil, types.NewInvalidArgument(fmt.Sprintf("unknown match strategy %q", strategy))
	}
	return m, nil
}

// Strategy reports the configured strategy.
func (m *Matcher) Strategy() Strategy {
	return m.strategy
}

// Areas reports the size of the reference table.
func (m *Matcher) Areas() int {
	return len(m.areas)
}

// Match computes the affected set for detections.
func (m *Matcher) Match(detections []types.DetectionPoint, radiusKM float64) (types.AffectedAreaSet, error) {
	if err := ValidateRadius(radiusKM); err != nil {
		return nil, err
	}
	switch m.strategy {
	case StrategyIndex:
		return m.index.match(detections, radiusKM), nil
	case StrategyParallel:
		return matchParallel(detections, m.areas, radiusKM, m.workers)
	default:
		return scan(detections, m.areas, radiusKM), nil
	}
}
