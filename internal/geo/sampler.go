package geo

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// Provider acquires a single position fix. Acquisition latency is real
// (device or location-provider round trip), so every call takes a context
// and must honour its deadline.
type Provider interface {
	Acquire(ctx context.Context) (domain.GeoPoint, error)
}

// ErrAcquisitionTimeout is reported when a fix does not arrive in time.
var ErrAcquisitionTimeout = errors.New("position acquisition timed out")

// SamplerConfig defines tunables for the sampler.
type SamplerConfig struct {
	Interval       time.Duration
	AcquireTimeout time.Duration
}

// Sampler produces position samples on a fixed cadence. Acquisitions never
// overlap: a tick that fires while a prior acquisition is in flight is
// skipped rather than queued, so slow providers cannot pile up concurrent
// requests. Failures are reported through OnError and the schedule keeps
// running; the tick interval itself bounds retry frequency.
type Sampler struct {
	provider Provider
	cfg      SamplerConfig
	logger   *zap.Logger

	// OnSample and OnError are invoked from the Run goroutine only, which
	// guarantees no callback fires after Run has returned.
	OnSample func(domain.GeoPoint)
	OnError  func(error)
}

// NewSampler constructs a sampler.
func NewSampler(provider Provider, logger *zap.Logger, cfg SamplerConfig) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sampler{provider: provider, cfg: cfg, logger: logger}
}

type acquireResult struct {
	point domain.GeoPoint
	err   error
}

// Run drives the sampling loop until the context is cancelled. The first
// acquisition starts immediately; subsequent ones follow the interval.
func (s *Sampler) Run(ctx context.Context) error {
	if s.provider == nil {
		return errors.New("sampler requires a provider")
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	results := make(chan acquireResult, 1)
	inFlight := false
	s.acquire(ctx, results)
	inFlight = true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-results:
			inFlight = false
			s.deliver(res)
		case <-ticker.C:
			if inFlight {
				skippedTicks.Inc()
				s.logger.Debug("acquisition still pending, tick skipped")
				continue
			}
			s.acquire(ctx, results)
			inFlight = true
		}
	}
}

func (s *Sampler) acquire(ctx context.Context, results chan<- acquireResult) {
	go func() {
		acqCtx, cancel := context.WithTimeoutCause(ctx, s.cfg.AcquireTimeout, ErrAcquisitionTimeout)
		defer cancel()
		point, err := s.provider.Acquire(acqCtx)
		if err != nil && context.Cause(acqCtx) == ErrAcquisitionTimeout {
			err = ErrAcquisitionTimeout
		}
		select {
		case results <- acquireResult{point: point, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Sampler) deliver(res acquireResult) {
	if res.err != nil {
		samplesTotal.WithLabelValues("error").Inc()
		if s.OnError != nil {
			s.OnError(res.err)
		}
		return
	}
	samplesTotal.WithLabelValues("ok").Inc()
	if s.OnSample != nil {
		s.OnSample(res.point)
	}
}
