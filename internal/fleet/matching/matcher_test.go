package matching_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/fleetwatch/internal/fleet/domain"
	"github.com/example/fleetwatch/internal/fleet/matching"
)

var testStatuses = []domain.Status{
	{ID: "st-1", Label: "Disponible"},
	{ID: "st-2", Label: "En servicio"},
	{ID: "st-3", Label: "En mantenimiento"},
}

func availableUnit(id string, lat, lng float64) domain.Unit {
	return domain.Unit{
		ID:       id,
		Status:   domain.Status{ID: "st-1", Label: "Disponible"},
		Position: &domain.GeoPoint{Lat: lat, Lng: lng},
	}
}

func TestHaversineZeroForSamePoint(t *testing.T) {
	p := domain.GeoPoint{Lat: 40.4168, Lng: -3.7038}
	require.InDelta(t, 0, matching.HaversineKM(p, p), 1e-9)
}

func TestHaversineKnownCityPair(t *testing.T) {
	madrid := domain.GeoPoint{Lat: 40.4168, Lng: -3.7038}
	barcelona := domain.GeoPoint{Lat: 41.3874, Lng: 2.1686}
	require.InDelta(t, 505, matching.HaversineKM(madrid, barcelona), 5)
}

func TestHaversineAntipodal(t *testing.T) {
	a := domain.GeoPoint{Lat: 0, Lng: 0}
	b := domain.GeoPoint{Lat: 0, Lng: 180}
	require.InDelta(t, 20015, matching.HaversineKM(a, b), 1)
}

func TestNearestAvailablePicksClosest(t *testing.T) {
	catalog := domain.NewStatusCatalog(testStatuses)
	query := domain.GeoPoint{Lat: 40.0, Lng: -3.0}
	units := []domain.Unit{
		availableUnit("u-far", 40.05, -3.0),
		availableUnit("u-near", 40.02, -3.0),
		availableUnit("u-farther", 40.08, -3.0),
	}

	match, ok := matching.NearestAvailable(query, units, catalog)
	require.True(t, ok)
	require.Equal(t, "u-near", match.Unit.ID)
	require.Greater(t, match.DistanceKM, 0.0)
}

func TestNearestAvailableSkipsBusyAndUnplaced(t *testing.T) {
	catalog := domain.NewStatusCatalog(testStatuses)
	query := domain.GeoPoint{Lat: 40.0, Lng: -3.0}

	closestButBusy := availableUnit("u-busy", 40.001, -3.0)
	closestButBusy.Status = domain.Status{ID: "st-2", Label: "En servicio"}
	noPosition := availableUnit("u-silent", 0, 0)
	noPosition.Position = nil
	units := []domain.Unit{
		closestButBusy,
		noPosition,
		availableUnit("u-ok", 40.1, -3.0),
	}

	match, ok := matching.NearestAvailable(query, units, catalog)
	require.True(t, ok)
	require.Equal(t, "u-ok", match.Unit.ID)
}

func TestNearestAvailableTieBreaksOnListOrder(t *testing.T) {
	catalog := domain.NewStatusCatalog(testStatuses)
	query := domain.GeoPoint{Lat: 40.0, Lng: -3.0}
	units := []domain.Unit{
		availableUnit("u-first", 40.01, -3.0),
		availableUnit("u-second", 40.01, -3.0),
	}

	match, ok := matching.NearestAvailable(query, units, catalog)
	require.True(t, ok)
	require.Equal(t, "u-first", match.Unit.ID)
}

func TestNearestAvailableNoCandidates(t *testing.T) {
	catalog := domain.NewStatusCatalog(testStatuses)
	busy := availableUnit("u-busy", 40.0, -3.0)
	busy.Status = domain.Status{ID: "st-2", Label: "En servicio"}

	_, ok := matching.NearestAvailable(domain.GeoPoint{}, []domain.Unit{busy}, catalog)
	require.False(t, ok)

	_, ok = matching.NearestAvailable(domain.GeoPoint{}, nil, catalog)
	require.False(t, ok)
}
