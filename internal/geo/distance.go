// Package geo implements great-circle distance on a spherical earth and the
// degree boxes used to prefilter radius searches.
package geo

import (
	"math"

	"github.com/umahmood/haversine"
)

// EarthRadiusKM is the mean radius used for all distance computations.
// This is a spherical approximation, not WGS-84.
const EarthRadiusKM = 6373.0

// Coord is a latitude/longitude pair in degrees.
type Coord = haversine.Coord

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Distance returns the haversine distance between p and q in kilometers.
// It does not call haversine.Distance, which fixes the radius at 6371 km
// and does not clamp the intermediate term near antipodal points.
func Distance(p, q Coord) float64 {
	lat1 := radians(p.Lat)
	lon1 := radians(p.Lon)
	lat2 := radians(q.Lat)
	lon2 := radians(q.Lon)

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	sinLat := math.Sin(dlat / 2)
	sinLon := math.Sin(dlon / 2)
	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	// rounding can push a just outside [0, 1]
	a = math.Max(0, math.Min(1, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// Box is a latitude/longitude rectangle in degrees.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// boxMargin widens search boxes so centroids sitting exactly on the radius
// are never lost to rounding in the box edges.
const boxMargin = 1e-7

// SearchBox returns a rectangle that contains every point within radiusKM
// of center. ok is false when no such rectangle exists without wrapping,
// i.e. the circle reaches a pole or crosses the antimeridian.
func SearchBox(center Coord, radiusKM float64) (Box, bool) {
	angular := radiusKM / EarthRadiusKM
	dLat := degrees(angular) + boxMargin

	box := Box{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
	}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		return Box{}, false
	}

	s := math.Sin(angular) / math.Cos(radians(center.Lat))
	if angular >= math.Pi/2 || s >= 1 {
		return Box{}, false
	}
	dLon := degrees(math.Asin(s)) + boxMargin

	box.MinLon = center.Lon - dLon
	box.MaxLon = center.Lon + dLon
	if box.MinLon <= -180 || box.MaxLon >= 180 {
		return Box{}, false
	}
	return box, true
}
