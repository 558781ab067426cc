package geo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/fleetwatch/internal/fleet/domain"
	"github.com/example/fleetwatch/internal/geo"
)

func TestReverseLookupJoinsAddressFragments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reverse", r.URL.Path)
		require.Equal(t, "json", r.URL.Query().Get("format"))
		require.Equal(t, "40.4168", r.URL.Query().Get("lat"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":{"road":"Calle Mayor","neighbourhood":"Centro","county":"Madrid"}}`))
	}))
	defer srv.Close()

	geocoder := geo.NewNominatimClient(srv.URL)
	label, err := geocoder.ReverseLookup(context.Background(), domain.GeoPoint{Lat: 40.4168, Lng: -3.7038})
	require.NoError(t, err)
	require.Equal(t, "Calle Mayor Centro Madrid", label)
}

func TestReverseLookupSkipsMissingFragments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":{"road":"","neighbourhood":"Centro","county":""}}`))
	}))
	defer srv.Close()

	geocoder := geo.NewNominatimClient(srv.URL)
	label, err := geocoder.ReverseLookup(context.Background(), domain.GeoPoint{})
	require.NoError(t, err)
	require.Equal(t, "Centro", label)
}

func TestReverseLookupEmptyAddressIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"address":{}}`))
	}))
	defer srv.Close()

	geocoder := geo.NewNominatimClient(srv.URL)
	_, err := geocoder.ReverseLookup(context.Background(), domain.GeoPoint{})
	require.Error(t, err)
}
