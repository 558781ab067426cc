package matching_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/example/fleetwatch/internal/fleet/domain"
	"github.com/example/fleetwatch/internal/fleet/matching"
)

func newRedisClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return client, cleanup
}

func TestGeoIndexSyncAndNearby(t *testing.T) {
	client, cleanup := newRedisClient(t)
	defer cleanup()

	catalog := domain.NewStatusCatalog(testStatuses)
	index := matching.NewRedisGeoIndex(client, "")
	ctx := context.Background()

	busy := availableUnit("u-busy", 40.001, -3.0)
	busy.Status = domain.Status{ID: "st-2", Label: "En servicio"}
	units := []domain.Unit{
		availableUnit("u-near", 40.01, -3.0),
		availableUnit("u-far", 40.4, -3.0),
		busy,
	}
	require.NoError(t, index.Sync(ctx, units, catalog))

	ids, err := index.Nearby(ctx, domain.GeoPoint{Lat: 40.0, Lng: -3.0}, 100, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"u-near", "u-far"}, ids)
}

func TestGeoIndexSyncDropsStaleEntries(t *testing.T) {
	client, cleanup := newRedisClient(t)
	defer cleanup()

	catalog := domain.NewStatusCatalog(testStatuses)
	index := matching.NewRedisGeoIndex(client, "")
	ctx := context.Background()

	require.NoError(t, index.Sync(ctx, []domain.Unit{availableUnit("u-old", 40.0, -3.0)}, catalog))
	require.NoError(t, index.Sync(ctx, []domain.Unit{availableUnit("u-new", 40.0, -3.0)}, catalog))

	ids, err := index.Nearby(ctx, domain.GeoPoint{Lat: 40.0, Lng: -3.0}, 50, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"u-new"}, ids)
}
