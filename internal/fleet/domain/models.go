package domain

import (
	"context"
	"errors"
	"time"
)

// RequestStatus is the closed lifecycle of a transport request. It is owned
// by this system, unlike unit statuses which the backend defines freely.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pendiente"
	StatusInProcess RequestStatus = "en_proceso"
	StatusCompleted RequestStatus = "completado"
	StatusCancelled RequestStatus = "cancelado"
)

var ErrInvalidTransition = errors.New("invalid request state transition")
var ErrNotFound = errors.New("not found")
var ErrInvalidInput = errors.New("invalid input")

var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusPending:   {StatusInProcess, StatusCancelled},
	StatusInProcess: {StatusCompleted},
}

// CanTransitionTo reports whether next is a legal successor of s. A status is
// always allowed to remain where it is.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s == next {
		return true
	}
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

type Priority string

const (
	PriorityLow    Priority = "baja"
	PriorityMedium Priority = "media"
	PriorityHigh   Priority = "alta"
)

type CrewRole string

const (
	RoleParamedic CrewRole = "PARAMEDICO"
	RoleDriver    CrewRole = "CONDUCTOR"
	RoleNurse     CrewRole = "ENFERMERO"
	RolePhysician CrewRole = "MEDICO"
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Status is a backend-owned unit state. The identity is not semantically
// stable across environments, so semantic checks go through StatusCatalog
// rather than comparing IDs or labels at call sites.
type Status struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// StatusCategory is the stable semantic bucket derived from a Status.
type StatusCategory int

const (
	CategoryBusy StatusCategory = iota
	CategoryAvailable
	CategoryOutOfService
)

func (c StatusCategory) String() string {
	switch c {
	case CategoryAvailable:
		return "available"
	case CategoryOutOfService:
		return "out_of_service"
	default:
		return "busy"
	}
}

type CrewMember struct {
	ID         string   `json:"id"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	Role       CrewRole `json:"role"`
	Email      string   `json:"email"`
	UnitID     string   `json:"unit_id,omitempty"`
}

// Unit is an ambulance and its crew as tracked by the fleet backend.
// Position is nil until the unit has reported at least once.
type Unit struct {
	ID            string       `json:"id"`
	Plate         string       `json:"plate"`
	Crew          []CrewMember `json:"crew"`
	Status        Status       `json:"status"`
	Position      *GeoPoint    `json:"position,omitempty"`
	LocationLabel string       `json:"location_label"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type TransportRequest struct {
	ID          string        `json:"id"`
	Patient     string        `json:"patient"`
	Origin      string        `json:"origin"`
	Destination string        `json:"destination"`
	When        time.Time     `json:"when"`
	Status      RequestStatus `json:"status"`
	Priority    Priority      `json:"priority"`
}

// CreateRequestInput is the intake payload for a new transport request.
type CreateRequestInput struct {
	Patient     string    `json:"patient"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	When        time.Time `json:"when"`
	Priority    Priority  `json:"priority"`
}

// Validate rejects malformed intake payloads before any network call.
func (in CreateRequestInput) Validate() error {
	switch {
	case in.Patient == "":
		return errors.New("patient is required")
	case in.Origin == "":
		return errors.New("origin is required")
	case in.Destination == "":
		return errors.New("destination is required")
	case in.When.IsZero():
		return errors.New("requested time is required")
	}
	switch in.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return nil
	default:
		return errors.New("priority must be one of baja, media, alta")
	}
}

// UnitInput is the payload for creating or updating a unit.
type UnitInput struct {
	Plate         string    `json:"plate"`
	CrewIDs       []string  `json:"crew_ids"`
	StatusID      string    `json:"status_id"`
	LocationLabel string    `json:"location_label"`
	Position      *GeoPoint `json:"position,omitempty"`
}

// Backend is the external REST service that owns all fleet state.
type Backend interface {
	ListUnits(ctx context.Context) ([]Unit, error)
	ListStatuses(ctx context.Context) ([]Status, error)
	ListCrew(ctx context.Context) ([]CrewMember, error)
	CreateUnit(ctx context.Context, in UnitInput) (Unit, error)
	UpdateUnit(ctx context.Context, id string, in UnitInput) (Unit, error)
	DeleteUnit(ctx context.Context, id string) error
	UpdateUnitLocation(ctx context.Context, id string, point GeoPoint, label string) (Unit, error)
	NearestUnit(ctx context.Context, point GeoPoint) (Unit, error)
	ListRequests(ctx context.Context) ([]TransportRequest, error)
	CreateRequest(ctx context.Context, in CreateRequestInput) (TransportRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, status RequestStatus) (TransportRequest, error)
}

// ReverseGeocoder resolves a human-readable neighbourhood label for a point.
// Lookups are best-effort; callers publish an empty label on failure.
type ReverseGeocoder interface {
	ReverseLookup(ctx context.Context, point GeoPoint) (string, error)
}

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Notification is a non-blocking, user-visible message.
type Notification struct {
	Severity Severity
	Title    string
	Body     string
}

// Notifier delivers notifications to the operator. Implementations must not
// block the calling task.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
