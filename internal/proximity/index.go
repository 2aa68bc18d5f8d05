package proximity

import (
	"github.com/dhconnelly/rtreego"

	"github.com/thomhuang/FireZipCodes/internal/geo"
	"github.com/thomhuang/FireZipCodes/internal/types"
)

// R-tree fan-out. A single huge node degrades every search to a linear scan.
const (
	minChildren = 25
	maxChildren = 50
)

// pointTolerance is the half-width of the rectangle stored for a centroid.
const pointTolerance = 1e-9

type areaItem struct {
	rect rtreego.Rect
	area types.PostalArea
}

func (it *areaItem) Bounds() rtreego.Rect {
	return it.rect
}

// Index is an R-tree over postal centroids keyed on (longitude, latitude).
// It is read-only once built and safe for concurrent searches.
type Index struct {
	tree  *rtreego.Rtree
	areas []types.PostalArea
}

// NewIndex builds the spatial index for areas.
func NewIndex(areas []types.PostalArea) *Index {
	tree := rtreego.NewTree(2, minChildren, maxChildren)
	for _, a := range areas {
		point := rtreego.Point{a.Longitude, a.Latitude}
		tree.Insert(&areaItem{rect: point.ToRect(pointTolerance), area: a})
	}
	return &Index{tree: tree, areas: areas}
}

// Size reports how many centroids are indexed.
func (ix *Index) Size() int {
	return ix.tree.Size()
}

// match expects a radius already accepted by ValidateRadius.
func (ix *Index) match(detections []types.DetectionPoint, radiusKM float64) types.AffectedAreaSet {
	affected := types.NewAffectedAreaSet()
	if len(ix.areas) == 0 {
		return affected
	}
	for _, d := range detections {
		rect, ok := searchRect(d, radiusKM)
		if !ok {
			// the circle wraps a pole or the antimeridian
			for _, a := range ix.areas {
				if within(d, a, radiusKM) {
					affected.Add(a.ZIP)
				}
			}
			continue
		}

		for _, item := range ix.tree.SearchIntersect(rect) {
			a := item.(*areaItem).area
			if within(d, a, radiusKM) {
				affected.Add(a.ZIP)
			}
		}
	}
	return affected
}

func searchRect(d types.DetectionPoint, radiusKM float64) (rtreego.Rect, bool) {
	box, ok := geo.SearchBox(geo.Coord{Lat: d.Latitude, Lon: d.Longitude}, radiusKM)
	if !ok {
		return rtreego.Rect{}, false
	}
	rect, err := rtreego.NewRect(
		rtreego.Point{box.MinLon, box.MinLat},
		[]float64{box.MaxLon - box.MinLon, box.MaxLat - box.MinLat},
	)
	if err != nil {
		return rtreego.Rect{}, false
	}
	return rect, true
}
