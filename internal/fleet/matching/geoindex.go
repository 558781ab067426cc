package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

const defaultGeoKey = "unit:locs"

// RedisGeoIndex mirrors unit positions into a redis GEO set so nearest
// queries stay cheap for large fleets. The roster snapshot remains the source
// of truth; the index only holds unit ids of units currently in the
// Available category.
type RedisGeoIndex struct {
	client redis.Cmdable
	key    string
}

// NewRedisGeoIndex constructs a redis-backed geo index.
func NewRedisGeoIndex(client redis.Cmdable, key string) *RedisGeoIndex {
	if key == "" {
		key = defaultGeoKey
	}
	return &RedisGeoIndex{client: client, key: key}
}

// Sync replaces the indexed positions with the given roster snapshot. Units
// without a position or outside the Available category are dropped from the
// index.
func (r *RedisGeoIndex) Sync(ctx context.Context, units []domain.Unit, catalog domain.StatusCatalog) error {
	if r == nil || r.client == nil {
		return errors.New("geo index not configured")
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	for _, unit := range units {
		if unit.Position == nil || !catalog.Available(unit) {
			continue
		}
		pipe.GeoAdd(ctx, r.key, &redis.GeoLocation{
			Name:      unit.ID,
			Longitude: unit.Position.Lng,
			Latitude:  unit.Position.Lat,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		geoIndexErrors.Inc()
		return fmt.Errorf("geo index sync: %w", err)
	}
	return nil
}

// Nearby returns up to limit unit ids ordered by distance to the point.
func (r *RedisGeoIndex) Nearby(ctx context.Context, point domain.GeoPoint, radiusKM float64, limit int) ([]string, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("geo index not configured")
	}
	query := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  point.Lng,
			Latitude:   point.Lat,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithDist: true,
	}
	results, err := r.client.GeoSearchLocation(ctx, r.key, query).Result()
	if err != nil {
		geoIndexErrors.Inc()
		return nil, fmt.Errorf("geo search: %w", err)
	}
	ids := make([]string, 0, len(results))
	for _, res := range results {
		ids = append(ids, res.Name)
	}
	return ids, nil
}
