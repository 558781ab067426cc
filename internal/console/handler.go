package console

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/auth"
	"github.com/example/fleetwatch/internal/dispatch"
	"github.com/example/fleetwatch/internal/fleet/domain"
	"github.com/example/fleetwatch/internal/fleet/matching"
	"github.com/example/fleetwatch/internal/notify"
	"github.com/example/fleetwatch/internal/roster"
	"github.com/example/fleetwatch/internal/talk"
)

// nearbyRadiusKM bounds the geo-index search; beyond this the linear
// fallback decides.
const nearbyRadiusKM = 100

// Handler exposes the operator console API.
type Handler struct {
	backend       domain.Backend
	store         *roster.Store
	catalog       domain.StatusCatalog
	watcher       *dispatch.Watcher
	lifecycle     *dispatch.Lifecycle
	intake        *dispatch.Intake
	geoIndex      *matching.RedisGeoIndex
	issuer        *talk.TokenIssuer
	notifications *notify.ChannelNotifier
	logger        *zap.Logger
}

// Config bundles the handler's collaborators. GeoIndex and Notifications are
// optional.
type Config struct {
	Backend       domain.Backend
	Store         *roster.Store
	Catalog       domain.StatusCatalog
	Watcher       *dispatch.Watcher
	Lifecycle     *dispatch.Lifecycle
	Intake        *dispatch.Intake
	GeoIndex      *matching.RedisGeoIndex
	Issuer        *talk.TokenIssuer
	Notifications *notify.ChannelNotifier
	Logger        *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		backend:       cfg.Backend,
		store:         cfg.Store,
		catalog:       cfg.Catalog,
		watcher:       cfg.Watcher,
		lifecycle:     cfg.Lifecycle,
		intake:        cfg.Intake,
		geoIndex:      cfg.GeoIndex,
		issuer:        cfg.Issuer,
		notifications: cfg.Notifications,
		logger:        logger,
	}
}

// Router builds the chi router with all endpoints and middlewares. Extra
// middlewares (auth, rate limiting) wrap every route.
func (h *Handler) Router(extra ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	for _, mw := range extra {
		r.Use(mw)
	}

	r.Get("/v1/units", h.listUnits)
	r.Get("/v1/units/stats", h.unitStats)
	r.Get("/v1/units/nearest", h.nearestUnit)
	r.Get("/v1/units/{id}", h.getUnit)
	r.Post("/v1/units", h.createUnit)
	r.Put("/v1/units/{id}", h.updateUnit)
	r.Delete("/v1/units/{id}", h.deleteUnit)

	r.Get("/v1/crew", h.listCrew)

	r.Get("/v1/requests", h.listRequests)
	r.Post("/v1/requests", h.createRequest)
	r.Post("/v1/requests/poll", h.pollRequests)
	r.Post("/v1/requests/{id}/accept", h.acceptRequest)
	r.Post("/v1/requests/{id}/reject", h.rejectRequest)

	r.Get("/v1/talk/token", h.talkToken)
	r.Get("/v1/notifications", h.drainNotifications)
	return r
}

type rosterResponse struct {
	Units       []domain.Unit `json:"units"`
	RefreshedAt time.Time     `json:"refreshed_at"`
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rosterResponse{
		Units:       h.store.Units(),
		RefreshedAt: h.store.RefreshedAt(),
	})
}

func (h *Handler) unitStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats(h.catalog))
}

func (h *Handler) getUnit(w http.ResponseWriter, r *http.Request) {
	unit, ok := h.store.Unit(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "unit not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (h *Handler) createUnit(w http.ResponseWriter, r *http.Request) {
	var payload domain.UnitInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unit, err := h.backend.CreateUnit(r.Context(), payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, unit)
}

func (h *Handler) updateUnit(w http.ResponseWriter, r *http.Request) {
	var payload domain.UnitInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unit, err := h.backend.UpdateUnit(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, unit)
}

func (h *Handler) deleteUnit(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.DeleteUnit(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type nearestResponse struct {
	Unit       domain.Unit `json:"unit"`
	DistanceKM float64     `json:"distance_km"`
}

// nearestUnit resolves the closest available unit to a point. The redis geo
// index answers first when configured; the linear haversine match is the
// fallback and the authority when the index is empty or unreachable.
func (h *Handler) nearestUnit(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLng != nil {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}
	point := domain.GeoPoint{Lat: lat, Lng: lng}

	if h.geoIndex != nil {
		ids, err := h.geoIndex.Nearby(r.Context(), point, nearbyRadiusKM, 1)
		if err != nil {
			h.logger.Warn("geo index lookup failed, falling back", zap.Error(err))
		} else if len(ids) > 0 {
			if unit, ok := h.store.Unit(ids[0]); ok && unit.Position != nil {
				writeJSON(w, http.StatusOK, nearestResponse{
					Unit:       unit,
					DistanceKM: matching.HaversineKM(point, *unit.Position),
				})
				return
			}
		}
	}

	match, ok := matching.NearestAvailable(point, h.store.Units(), h.catalog)
	if !ok {
		http.Error(w, "no available unit with a known position", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, nearestResponse{Unit: match.Unit, DistanceKM: match.DistanceKM})
}

func (h *Handler) listCrew(w http.ResponseWriter, r *http.Request) {
	crew, err := h.backend.ListCrew(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, crew)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.watcher.Requests())
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var payload domain.CreateRequestInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.intake.Submit(r.Context(), r.Header.Get("Idempotency-Key"), payload)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) pollRequests(w http.ResponseWriter, r *http.Request) {
	if err := h.watcher.Poll(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, h.watcher.Requests())
}

func (h *Handler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Accept(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Reject(r.Context(), chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type talkTokenResponse struct {
	Channel string `json:"channel"`
	Token   string `json:"token"`
	UID     string `json:"uid"`
}

// talkToken issues a join credential for the push-to-talk channel of the
// requested peer. The uid comes from the authenticated session when present,
// otherwise from the uid query parameter.
func (h *Handler) talkToken(w http.ResponseWriter, r *http.Request) {
	peer := r.URL.Query().Get("peer")
	if peer == "" {
		http.Error(w, "peer is required", http.StatusBadRequest)
		return
	}
	channel := talk.ChannelForPeer(peer)
	if !talk.ValidChannel(channel) {
		http.Error(w, talk.ErrInvalidChannel.Error(), http.StatusBadRequest)
		return
	}
	uid := auth.EmailFromContext(r.Context())
	if uid == "" {
		uid = r.URL.Query().Get("uid")
	}
	if uid == "" {
		http.Error(w, "uid is required", http.StatusBadRequest)
		return
	}
	token, err := h.issuer.Issue(channel, uid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, talkTokenResponse{Channel: channel, Token: token, UID: uid})
}

// drainNotifications returns the operator alerts buffered since the last
// call.
func (h *Handler) drainNotifications(w http.ResponseWriter, r *http.Request) {
	out := make([]domain.Notification, 0, 8)
	if h.notifications != nil {
		for {
			select {
			case n := <-h.notifications.C():
				out = append(out, n)
				continue
			default:
			}
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
