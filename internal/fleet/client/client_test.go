package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/fleetwatch/internal/fleet/client"
	"github.com/example/fleetwatch/internal/fleet/domain"
)

func TestListUnitsMapsWirePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/units", r.URL.Path)
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"u-1","plate":"AMB-001","lat":40.1,"lon":-3.2,"updatedAt":"2026-08-30T10:00:00Z",
			 "currentLocationLabel":"Calle Mayor Centro Madrid",
			 "status":{"id":"st-1","label":"Disponible"},
			 "crew":[{"id":"c-1","givenName":"Ana","familyName":"García","role":"PARAMEDICO","email":"ana@example.org","unitId":"u-1"}]},
			{"id":"u-2","plate":"AMB-002","lat":null,"lon":null,
			 "status":{"id":"st-2","label":"En servicio"},"crew":[]}
		]`))
	}))
	defer srv.Close()

	c := client.New(srv.URL, client.WithBearerToken("secret-token"))
	units, err := c.ListUnits(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 2)

	require.Equal(t, "u-1", units[0].ID)
	require.NotNil(t, units[0].Position)
	require.Equal(t, 40.1, units[0].Position.Lat)
	require.Equal(t, -3.2, units[0].Position.Lng)
	require.Equal(t, "Calle Mayor Centro Madrid", units[0].LocationLabel)
	require.Equal(t, domain.RoleParamedic, units[0].Crew[0].Role)

	// Units that never reported have no position at all, not a zero one.
	require.Nil(t, units[1].Position)
}

func TestUpdateUnitLocationSendsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/units/u-1/location", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u-1","lat":40.1,"lon":-3.2,"status":{"id":"st-1","label":"Disponible"}}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	unit, err := c.UpdateUnitLocation(context.Background(), "u-1", domain.GeoPoint{Lat: 40.1, Lng: -3.2}, "Centro")
	require.NoError(t, err)
	require.Equal(t, "u-1", unit.ID)
	require.Equal(t, 40.1, got["lat"])
	require.Equal(t, -3.2, got["lon"])
	require.Equal(t, "Centro", got["locationLabel"])
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such unit", http.StatusNotFound)
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	err := c.DeleteUnit(context.Background(), "u-missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNearestUnitQueryAndEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/units/nearest", r.URL.Path)
		require.Equal(t, "40.5", r.URL.Query().Get("lat"))
		require.Equal(t, "-3.7", r.URL.Query().Get("lon"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	_, err := c.NearestUnit(context.Background(), domain.GeoPoint{Lat: 40.5, Lng: -3.7})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateRequestFormatsTimestamps(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"r-1","patient":"Juan","status":"pendiente","priority":"alta"}`))
	}))
	defer srv.Close()

	when := time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC)
	c := client.New(srv.URL)
	created, err := c.CreateRequest(context.Background(), domain.CreateRequestInput{
		Patient:     "Juan",
		Origin:      "A",
		Destination: "B",
		When:        when,
		Priority:    domain.PriorityHigh,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, created.Status)
	require.Equal(t, "2026-08-30T12:30:00Z", got["when"])
}

func TestFindUnitByCrewEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crew", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"c-1","email":"ana@example.org","unitId":"u-1"},
			{"id":"c-2","email":"luis@example.org"}
		]`))
	}))
	defer srv.Close()

	c := client.New(srv.URL)

	unitID, err := c.FindUnitByCrewEmail(context.Background(), "ANA@example.org")
	require.NoError(t, err)
	require.Equal(t, "u-1", unitID)

	_, err = c.FindUnitByCrewEmail(context.Background(), "luis@example.org")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.FindUnitByCrewEmail(context.Background(), "nobody@example.org")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
