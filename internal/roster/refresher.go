package roster

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// GeoSink receives each fresh snapshot, used to keep the redis geo index in
// step with the roster. Optional.
type GeoSink interface {
	Sync(ctx context.Context, units []domain.Unit, catalog domain.StatusCatalog) error
}

// RefresherConfig tunes the roster poll loop.
type RefresherConfig struct {
	Interval time.Duration
}

// Refresher polls the fleet backend for the full unit roster and installs
// each result as a whole snapshot. A failed poll keeps the previous
// snapshot; staleness is visible through RefreshedAt rather than by
// discarding data.
type Refresher struct {
	backend  domain.Backend
	store    *Store
	catalog  domain.StatusCatalog
	geo      GeoSink
	clock    domain.Clock
	logger   *zap.Logger
	tracer   trace.Tracer
	interval time.Duration
}

// NewRefresher constructs the poll loop.
func NewRefresher(backend domain.Backend, store *Store, catalog domain.StatusCatalog, geo GeoSink, clock domain.Clock, logger *zap.Logger, cfg RefresherConfig) (*Refresher, error) {
	if backend == nil {
		return nil, errors.New("roster refresher requires a backend")
	}
	if store == nil {
		return nil, errors.New("roster refresher requires a store")
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Refresher{
		backend:  backend,
		store:    store,
		catalog:  catalog,
		geo:      geo,
		clock:    clock,
		logger:   logger,
		tracer:   otel.Tracer("fleet.roster"),
		interval: interval,
	}, nil
}

// Run polls until the context is cancelled. The first poll happens
// immediately so the console starts with a roster instead of an empty map.
func (r *Refresher) Run(ctx context.Context) error {
	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// Refresh runs one poll synchronously, used by tests and forced refreshes.
func (r *Refresher) Refresh(ctx context.Context) error {
	return r.refresh(ctx)
}

func (r *Refresher) refresh(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "roster.refresh")
	defer span.End()

	units, err := r.backend.ListUnits(ctx)
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		r.logger.Warn("roster poll failed, keeping previous snapshot", zap.Error(err))
		return err
	}
	r.store.Replace(units, r.clock.Now())
	refreshesTotal.WithLabelValues("ok").Inc()

	if r.geo != nil {
		if err := r.geo.Sync(ctx, units, r.catalog); err != nil {
			r.logger.Warn("geo index sync failed", zap.Error(err))
		}
	}
	return nil
}
