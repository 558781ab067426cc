package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// NominatimClient resolves neighbourhood labels through a Nominatim-style
// reverse geocoding endpoint. Lookups are best-effort: callers are expected
// to publish an empty label when the lookup fails rather than abort.
type NominatimClient struct {
	baseURL string
	http    *http.Client
}

// NewNominatimClient constructs a reverse geocoder against the given base
// URL (e.g. "https://nominatim.openstreetmap.org").
func NewNominatimClient(baseURL string) *NominatimClient {
	return &NominatimClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

var _ domain.ReverseGeocoder = (*NominatimClient)(nil)

type reverseResponse struct {
	Address struct {
		Road          string `json:"road"`
		Neighbourhood string `json:"neighbourhood"`
		County        string `json:"county"`
	} `json:"address"`
}

// ReverseLookup returns a short free-text label for the point, built from
// road, neighbourhood and county fragments.
func (c *NominatimClient) ReverseLookup(ctx context.Context, point domain.GeoPoint) (string, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", strconv.FormatFloat(point.Lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(point.Lng, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		reverseLookups.WithLabelValues("error").Inc()
		return "", fmt.Errorf("reverse lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		reverseLookups.WithLabelValues("error").Inc()
		return "", fmt.Errorf("reverse lookup returned %d", resp.StatusCode)
	}
	var payload reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		reverseLookups.WithLabelValues("error").Inc()
		return "", fmt.Errorf("decode reverse lookup: %w", err)
	}
	label := strings.TrimSpace(strings.Join(nonEmpty(
		payload.Address.Road,
		payload.Address.Neighbourhood,
		payload.Address.County,
	), " "))
	if label == "" {
		reverseLookups.WithLabelValues("empty").Inc()
		return "", fmt.Errorf("no address data for %.5f,%.5f", point.Lat, point.Lng)
	}
	reverseLookups.WithLabelValues("ok").Inc()
	return label, nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
