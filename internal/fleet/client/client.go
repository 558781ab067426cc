package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// Client talks to the fleet REST backend. All fleet state is owned by that
// service; this client only maps wire payloads to domain types.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBearerToken attaches a bearer token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New constructs a backend client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ domain.Backend = (*Client)(nil)

type unitWire struct {
	ID            string     `json:"id"`
	Plate         string     `json:"plate"`
	Crew          []crewWire `json:"crew"`
	Status        statusWire `json:"status"`
	Lat           *float64   `json:"lat"`
	Lon           *float64   `json:"lon"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LocationLabel string     `json:"currentLocationLabel"`
}

type statusWire struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type crewWire struct {
	ID         string `json:"id"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	UnitID     string `json:"unitId,omitempty"`
}

type requestWire struct {
	ID          string    `json:"id"`
	Patient     string    `json:"patient"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	When        time.Time `json:"when"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
}

func (w unitWire) toDomain() domain.Unit {
	unit := domain.Unit{
		ID:            w.ID,
		Plate:         w.Plate,
		Status:        domain.Status{ID: w.Status.ID, Label: w.Status.Label},
		LocationLabel: w.LocationLabel,
		UpdatedAt:     w.UpdatedAt,
	}
	if w.Lat != nil && w.Lon != nil {
		unit.Position = &domain.GeoPoint{Lat: *w.Lat, Lng: *w.Lon}
	}
	for _, member := range w.Crew {
		unit.Crew = append(unit.Crew, member.toDomain())
	}
	return unit
}

func (w crewWire) toDomain() domain.CrewMember {
	return domain.CrewMember{
		ID:         w.ID,
		GivenName:  w.GivenName,
		FamilyName: w.FamilyName,
		Role:       domain.CrewRole(w.Role),
		Email:      w.Email,
		UnitID:     w.UnitID,
	}
}

func (w requestWire) toDomain() domain.TransportRequest {
	return domain.TransportRequest{
		ID:          w.ID,
		Patient:     w.Patient,
		Origin:      w.Origin,
		Destination: w.Destination,
		When:        w.When,
		Status:      domain.RequestStatus(w.Status),
		Priority:    domain.Priority(w.Priority),
	}
}

// ListUnits fetches the full roster snapshot.
func (c *Client) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	var wires []unitWire
	if err := c.do(ctx, http.MethodGet, "/units", nil, &wires); err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	units := make([]domain.Unit, 0, len(wires))
	for _, w := range wires {
		units = append(units, w.toDomain())
	}
	return units, nil
}

// ListStatuses fetches the backend's status vocabulary.
func (c *Client) ListStatuses(ctx context.Context) ([]domain.Status, error) {
	var wires []statusWire
	if err := c.do(ctx, http.MethodGet, "/statuses", nil, &wires); err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	statuses := make([]domain.Status, 0, len(wires))
	for _, w := range wires {
		statuses = append(statuses, domain.Status{ID: w.ID, Label: w.Label})
	}
	return statuses, nil
}

// ListCrew fetches all crew members across the fleet.
func (c *Client) ListCrew(ctx context.Context) ([]domain.CrewMember, error) {
	var wires []crewWire
	if err := c.do(ctx, http.MethodGet, "/crew", nil, &wires); err != nil {
		return nil, fmt.Errorf("list crew: %w", err)
	}
	crew := make([]domain.CrewMember, 0, len(wires))
	for _, w := range wires {
		crew = append(crew, w.toDomain())
	}
	return crew, nil
}

// FindUnitByCrewEmail resolves the unit a crew member is assigned to.
// Returns domain.ErrNotFound when the email matches nobody or the member has
// no unit assignment. Matching is case-insensitive.
func (c *Client) FindUnitByCrewEmail(ctx context.Context, email string) (string, error) {
	crew, err := c.ListCrew(ctx)
	if err != nil {
		return "", err
	}
	for _, member := range crew {
		if strings.EqualFold(member.Email, email) {
			if member.UnitID == "" {
				return "", fmt.Errorf("crew member %s has no unit: %w", member.ID, domain.ErrNotFound)
			}
			return member.UnitID, nil
		}
	}
	return "", fmt.Errorf("crew email %s: %w", email, domain.ErrNotFound)
}

type unitInputWire struct {
	Plate         string   `json:"plate"`
	CrewIDs       []string `json:"crewIds"`
	StatusID      string   `json:"statusId"`
	LocationLabel string   `json:"currentLocationLabel"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
}

func toUnitInputWire(in domain.UnitInput) unitInputWire {
	wire := unitInputWire{
		Plate:         in.Plate,
		CrewIDs:       in.CrewIDs,
		StatusID:      in.StatusID,
		LocationLabel: in.LocationLabel,
	}
	if in.Position != nil {
		wire.Lat = &in.Position.Lat
		wire.Lon = &in.Position.Lng
	}
	return wire
}

// CreateUnit registers a new unit in the fleet.
func (c *Client) CreateUnit(ctx context.Context, in domain.UnitInput) (domain.Unit, error) {
	var wire unitWire
	if err := c.do(ctx, http.MethodPost, "/units", toUnitInputWire(in), &wire); err != nil {
		return domain.Unit{}, fmt.Errorf("create unit: %w", err)
	}
	return wire.toDomain(), nil
}

// UpdateUnit replaces a unit's editable fields.
func (c *Client) UpdateUnit(ctx context.Context, id string, in domain.UnitInput) (domain.Unit, error) {
	var wire unitWire
	if err := c.do(ctx, http.MethodPatch, "/units/"+url.PathEscape(id), toUnitInputWire(in), &wire); err != nil {
		return domain.Unit{}, fmt.Errorf("update unit %s: %w", id, err)
	}
	return wire.toDomain(), nil
}

// DeleteUnit removes a unit from the fleet.
func (c *Client) DeleteUnit(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/units/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete unit %s: %w", id, err)
	}
	return nil
}

// UpdateUnitLocation publishes a position report for one unit and returns the
// backend's view of the unit.
func (c *Client) UpdateUnitLocation(ctx context.Context, id string, point domain.GeoPoint, label string) (domain.Unit, error) {
	body := map[string]any{
		"lat":           point.Lat,
		"lon":           point.Lng,
		"locationLabel": label,
	}
	var wire unitWire
	if err := c.do(ctx, http.MethodPatch, "/units/"+url.PathEscape(id)+"/location", body, &wire); err != nil {
		return domain.Unit{}, fmt.Errorf("update unit %s location: %w", id, err)
	}
	return wire.toDomain(), nil
}

// NearestUnit asks the backend for the closest unit to the given point.
// Returns domain.ErrNotFound when the backend reports no candidate.
func (c *Client) NearestUnit(ctx context.Context, point domain.GeoPoint) (domain.Unit, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(point.Lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(point.Lng, 'f', -1, 64))
	var wire unitWire
	err := c.do(ctx, http.MethodGet, "/units/nearest?"+query.Encode(), nil, &wire)
	if err != nil {
		return domain.Unit{}, fmt.Errorf("nearest unit: %w", err)
	}
	if wire.ID == "" {
		return domain.Unit{}, domain.ErrNotFound
	}
	return wire.toDomain(), nil
}

// ListRequests fetches the transport-request queue.
func (c *Client) ListRequests(ctx context.Context) ([]domain.TransportRequest, error) {
	var wires []requestWire
	if err := c.do(ctx, http.MethodGet, "/requests", nil, &wires); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	requests := make([]domain.TransportRequest, 0, len(wires))
	for _, w := range wires {
		requests = append(requests, w.toDomain())
	}
	return requests, nil
}

// CreateRequest submits a new transport request; the backend assigns the id
// and the pending status.
func (c *Client) CreateRequest(ctx context.Context, in domain.CreateRequestInput) (domain.TransportRequest, error) {
	body := map[string]any{
		"patient":     in.Patient,
		"origin":      in.Origin,
		"destination": in.Destination,
		"when":        in.When.Format(time.RFC3339),
		"priority":    string(in.Priority),
	}
	var wire requestWire
	if err := c.do(ctx, http.MethodPost, "/requests", body, &wire); err != nil {
		return domain.TransportRequest{}, fmt.Errorf("create request: %w", err)
	}
	return wire.toDomain(), nil
}

// UpdateRequestStatus asks the backend to apply a lifecycle transition. The
// backend is the final arbiter; a conflicting transition comes back as an
// HTTP error.
func (c *Client) UpdateRequestStatus(ctx context.Context, id string, status domain.RequestStatus) (domain.TransportRequest, error) {
	body := map[string]any{"status": string(status)}
	var wire requestWire
	if err := c.do(ctx, http.MethodPatch, "/requests/"+url.PathEscape(id), body, &wire); err != nil {
		return domain.TransportRequest{}, fmt.Errorf("update request %s: %w", id, err)
	}
	return wire.toDomain(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
