package locsync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/fleet/domain"
	"github.com/example/fleetwatch/internal/geo"
	"github.com/example/fleetwatch/internal/roster"
)

// Phase is the syncer's position in its per-cycle state machine.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSampling
	PhasePublishing
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseSampling:
		return "sampling"
	case PhasePublishing:
		return "publishing"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

// Config defines tunables for the location syncer.
type Config struct {
	UnitID         string
	Interval       time.Duration
	AcquireTimeout time.Duration
}

// Syncer keeps one unit's backend position fresh and the local roster
// snapshot reconciled. Each cycle samples a position, resolves a best-effort
// neighbourhood label, publishes {unit, lat, lon, label}, then re-fetches the
// full roster and replaces the local snapshot wholesale. Cycles never
// overlap: a sample arriving while a cycle is in flight is dropped, which
// bounds backend write load to one outstanding request per unit. Sampling or
// publishing failures are logged and notified, and the syncer returns to
// idle; the sampling cadence provides the retry schedule.
type Syncer struct {
	cfg      Config
	provider geo.Provider
	backend  domain.Backend
	geocoder domain.ReverseGeocoder
	store    *roster.Store
	notifier domain.Notifier
	clock    domain.Clock
	logger   *zap.Logger
	tracer   trace.Tracer

	// OnPublish, when set, observes every successfully published sample.
	// Used to stream positions to the console ingest. Best-effort; it runs
	// inside the cycle and its errors do not fail the cycle.
	OnPublish func(ctx context.Context, point domain.GeoPoint, label string, at time.Time)

	phase atomic.Int32
	busy  atomic.Bool
}

// New constructs a syncer.
func New(cfg Config, provider geo.Provider, backend domain.Backend, geocoder domain.ReverseGeocoder, store *roster.Store, notifier domain.Notifier, clock domain.Clock, logger *zap.Logger) (*Syncer, error) {
	if cfg.UnitID == "" {
		return nil, errors.New("location syncer requires a unit id")
	}
	if provider == nil || backend == nil || store == nil {
		return nil, errors.New("location syncer requires provider, backend and store")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		cfg:      cfg,
		provider: provider,
		backend:  backend,
		geocoder: geocoder,
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		tracer:   otel.Tracer("fleet.locsync"),
	}, nil
}

// Phase reports the current cycle phase.
func (s *Syncer) Phase() Phase {
	return Phase(s.phase.Load())
}

// Run drives sampling and sync cycles until the context is cancelled. No
// callback runs and no snapshot mutation happens after cancellation settles.
func (s *Syncer) Run(ctx context.Context) error {
	sampler := geo.NewSampler(s.provider, s.logger.Named("sampler"), geo.SamplerConfig{
		Interval:       s.cfg.Interval,
		AcquireTimeout: s.cfg.AcquireTimeout,
	})
	sampler.OnSample = func(point domain.GeoPoint) { s.HandleSample(ctx, point) }
	sampler.OnError = func(err error) {
		s.phase.Store(int32(PhaseIdle))
		cyclesTotal.WithLabelValues("sample_error").Inc()
		s.logger.Warn("position sample failed", zap.Error(err))
		s.notify(ctx, domain.SeverityError, "Location", "could not acquire unit position")
	}
	s.phase.Store(int32(PhaseSampling))
	defer s.phase.Store(int32(PhaseIdle))
	return sampler.Run(ctx)
}

// HandleSample starts one publish/reconcile cycle for the sample. If a prior
// cycle has not finished its reconciliation yet the sample is dropped, not
// queued.
func (s *Syncer) HandleSample(ctx context.Context, point domain.GeoPoint) {
	if !s.busy.CompareAndSwap(false, true) {
		droppedSamples.Inc()
		s.logger.Debug("cycle in flight, sample dropped", zap.String("unit_id", s.cfg.UnitID))
		return
	}
	go func() {
		defer s.busy.Store(false)
		s.cycle(ctx, point)
	}()
}

func (s *Syncer) cycle(ctx context.Context, point domain.GeoPoint) {
	ctx, span := s.tracer.Start(ctx, "locsync.cycle")
	defer span.End()
	defer s.phase.Store(int32(PhaseSampling))

	s.phase.Store(int32(PhasePublishing))
	label := s.resolveLabel(ctx, point)

	if _, err := s.backend.UpdateUnitLocation(ctx, s.cfg.UnitID, point, label); err != nil {
		cyclesTotal.WithLabelValues("publish_error").Inc()
		s.logger.Warn("location publish failed", zap.String("unit_id", s.cfg.UnitID), zap.Error(err))
		s.notify(ctx, domain.SeverityError, "Location", "could not publish unit position")
		return
	}

	if s.OnPublish != nil {
		s.OnPublish(ctx, point, label, s.clock.Now())
	}

	s.phase.Store(int32(PhaseReconciling))
	units, err := s.backend.ListUnits(ctx)
	if err != nil {
		cyclesTotal.WithLabelValues("reconcile_error").Inc()
		s.logger.Warn("roster refetch failed", zap.String("unit_id", s.cfg.UnitID), zap.Error(err))
		s.notify(ctx, domain.SeverityError, "Fleet", "could not refresh the fleet roster")
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.store.Replace(units, s.clock.Now())
	cyclesTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("location cycle complete",
		zap.String("unit_id", s.cfg.UnitID),
		zap.Float64("lat", point.Lat),
		zap.Float64("lng", point.Lng),
		zap.String("label", label),
	)
}

// resolveLabel is best-effort: on any geocoding failure the cycle publishes
// coordinates with an empty label rather than aborting.
func (s *Syncer) resolveLabel(ctx context.Context, point domain.GeoPoint) string {
	if s.geocoder == nil {
		return ""
	}
	label, err := s.geocoder.ReverseLookup(ctx, point)
	if err != nil {
		s.logger.Debug("reverse geocode failed", zap.Error(err))
		return ""
	}
	return label
}

func (s *Syncer) notify(ctx context.Context, severity domain.Severity, title, body string) {
	if s.notifier == nil || ctx.Err() != nil {
		return
	}
	s.notifier.Notify(ctx, domain.Notification{Severity: severity, Title: title, Body: body})
}
