package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// HTTPProvider reads positions from a local GPS bridge speaking JSON, e.g. a
// gpsd adapter exposing {"lat": ..., "lon": ...}.
type HTTPProvider struct {
	url  string
	http *http.Client
}

// NewHTTPProvider constructs a provider against the bridge URL.
func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{url: url, http: &http.Client{}}
}

// Acquire fetches the current fix.
func (p *HTTPProvider) Acquire(ctx context.Context) (domain.GeoPoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return domain.GeoPoint{}, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("gps bridge: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.GeoPoint{}, fmt.Errorf("gps bridge: unexpected status %d", resp.StatusCode)
	}
	var fix struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		return domain.GeoPoint{}, fmt.Errorf("gps bridge: decode: %w", err)
	}
	if fix.Lat == nil || fix.Lon == nil {
		return domain.GeoPoint{}, fmt.Errorf("gps bridge: no fix")
	}
	return domain.GeoPoint{Lat: *fix.Lat, Lng: *fix.Lon}, nil
}

// FixedProvider always reports the same position, for stationary posts and
// local development.
type FixedProvider struct {
	Point domain.GeoPoint
}

// Acquire returns the fixed position.
func (p FixedProvider) Acquire(_ context.Context) (domain.GeoPoint, error) {
	return p.Point, nil
}
