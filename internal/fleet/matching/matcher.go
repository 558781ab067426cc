package matching

import (
	"errors"
	"math"
	"time"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// EarthRadiusKM is the fixed sphere radius used for great-circle distances.
const EarthRadiusKM = 6371.0

// ErrNoCandidates indicates no available unit could be matched.
var ErrNoCandidates = errors.New("no available unit")

// Match pairs a unit with its great-circle distance to the query point.
type Match struct {
	Unit       domain.Unit
	DistanceKM float64
}

// NearestAvailable returns the closest unit whose status maps to the
// Available category and that has reported a position. Ties are broken by
// input order: the first unit at the strictly minimal distance wins. The
// order dependence is deliberate; exact ties are measure-zero in practice and
// the stable choice keeps results reproducible.
func NearestAvailable(query domain.GeoPoint, units []domain.Unit, catalog domain.StatusCatalog) (Match, bool) {
	start := time.Now()
	best := Match{DistanceKM: math.Inf(1)}
	found := false
	for _, unit := range units {
		if unit.Position == nil || !catalog.Available(unit) {
			continue
		}
		dist := HaversineKM(query, *unit.Position)
		if dist < best.DistanceKM {
			best = Match{Unit: unit, DistanceKM: dist}
			found = true
		}
	}
	result := "miss"
	if found {
		result = "hit"
	}
	nearestDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return best, found
}

// HaversineKM computes the great-circle distance between two points in
// kilometres.
func HaversineKM(a, b domain.GeoPoint) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlat := toRadians(b.Lat - a.Lat)
	dlon := toRadians(b.Lng - a.Lng)

	sinDlat := math.Sin(dlat / 2)
	sinDlon := math.Sin(dlon / 2)
	h := sinDlat*sinDlat + math.Cos(lat1)*math.Cos(lat2)*sinDlon*sinDlon
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKM * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
