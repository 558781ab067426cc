package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// ChangeKind classifies one queue item against the previous snapshot.
type ChangeKind string

const (
	ChangeCreated      ChangeKind = "created"
	ChangeTransitioned ChangeKind = "transitioned"
	ChangeRemoved      ChangeKind = "removed"
)

// Change is emitted exactly once per created or transitioned request, in the
// order items appear in the polled list. Removed changes should not occur
// under the append-only request model but are reported rather than dropped
// silently.
type Change struct {
	Kind    ChangeKind
	Request domain.TransportRequest
	From    domain.RequestStatus
	To      domain.RequestStatus
}

// EventPublisher forwards change events beyond the local process.
type EventPublisher interface {
	Publish(ctx context.Context, change Change) error
}

// WatcherConfig defines tunables for the queue watcher.
type WatcherConfig struct {
	Interval   time.Duration
	MinPollGap time.Duration
}

// Watcher polls the transport-request queue and diffs each fetch against the
// previous snapshot. Classification always reads one consistent previous
// snapshot against one consistent fetched list; the snapshot is replaced
// wholesale after the events for a poll have been emitted. Poll failures keep
// the previous snapshot and wait for the next tick; the tick interval bounds
// retry frequency, so there is no backoff.
type Watcher struct {
	backend  domain.Backend
	notifier domain.Notifier
	events   EventPublisher
	clock    domain.Clock
	logger   *zap.Logger
	tracer   trace.Tracer
	cfg      WatcherConfig

	// OnChange, when set, receives every emitted change on the polling
	// goroutine.
	OnChange func(Change)

	pollMu   sync.Mutex
	previous map[string]domain.RequestStatus
	primed   bool
	lastAuto time.Time

	snapMu   sync.RWMutex
	snapshot []domain.TransportRequest

	forced chan struct{}
}

// NewWatcher constructs a queue watcher.
func NewWatcher(backend domain.Backend, notifier domain.Notifier, events EventPublisher, clock domain.Clock, logger *zap.Logger, cfg WatcherConfig) (*Watcher, error) {
	if backend == nil {
		return nil, errors.New("watcher requires a backend")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.MinPollGap <= 0 {
		cfg.MinPollGap = 5 * time.Second
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		backend:  backend,
		notifier: notifier,
		events:   events,
		clock:    clock,
		logger:   logger,
		tracer:   otel.Tracer("fleet.dispatch.watcher"),
		cfg:      cfg,
		previous: make(map[string]domain.RequestStatus),
		forced:   make(chan struct{}, 1),
	}, nil
}

// Run polls on the configured interval until the context is cancelled. The
// automatic timer runs independently of forced polls and is never itself
// throttled; an automatic tick closer than MinPollGap to the previous
// automatic poll is skipped.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	if err := w.pollOnce(ctx, false); err != nil && !errors.Is(err, context.Canceled) {
		w.reportPollFailure(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.forced:
			if err := w.pollOnce(ctx, true); err != nil && !errors.Is(err, context.Canceled) {
				w.reportPollFailure(ctx, err)
			}
		case <-ticker.C:
			if gap := w.clock.Now().Sub(w.lastAutoAt()); gap < w.cfg.MinPollGap {
				w.logger.Debug("automatic poll skipped", zap.Duration("gap", gap))
				continue
			}
			if err := w.pollOnce(ctx, false); err != nil && !errors.Is(err, context.Canceled) {
				w.reportPollFailure(ctx, err)
			}
		}
	}
}

// Poll performs a forced poll immediately, bypassing the minimum gap between
// automatic polls. Used by external actors such as request intake.
func (w *Watcher) Poll(ctx context.Context) error {
	return w.pollOnce(ctx, true)
}

// RequestPoll schedules a forced poll on the watcher's own goroutine without
// blocking the caller. Coalesces if one is already pending.
func (w *Watcher) RequestPoll() {
	select {
	case w.forced <- struct{}{}:
	default:
	}
}

// Requests returns the last confirmed queue snapshot.
func (w *Watcher) Requests() []domain.TransportRequest {
	w.snapMu.RLock()
	defer w.snapMu.RUnlock()
	return append([]domain.TransportRequest(nil), w.snapshot...)
}

// StatusOf reports the confirmed status of one request.
func (w *Watcher) StatusOf(id string) (domain.RequestStatus, bool) {
	w.snapMu.RLock()
	defer w.snapMu.RUnlock()
	for _, req := range w.snapshot {
		if req.ID == id {
			return req.Status, true
		}
	}
	return "", false
}

func (w *Watcher) lastAutoAt() time.Time {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()
	return w.lastAuto
}

// pollOnce serializes all polls, forced or automatic, so classification
// never observes a half-replaced snapshot.
func (w *Watcher) pollOnce(ctx context.Context, forced bool) error {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()

	ctx, span := w.tracer.Start(ctx, "dispatch.poll")
	defer span.End()

	current, err := w.backend.ListRequests(ctx)
	if err != nil {
		pollsTotal.WithLabelValues(pollKind(forced), "error").Inc()
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	changes := diff(w.previous, current)
	for _, change := range changes {
		w.emit(ctx, change)
	}

	next := make(map[string]domain.RequestStatus, len(current))
	for _, req := range current {
		next[req.ID] = req.Status
	}
	w.previous = next
	w.primed = true
	if !forced {
		w.lastAuto = w.clock.Now()
	}

	w.snapMu.Lock()
	w.snapshot = append([]domain.TransportRequest(nil), current...)
	w.snapMu.Unlock()

	pollsTotal.WithLabelValues(pollKind(forced), "ok").Inc()
	return nil
}

// diff classifies the fetched list against the previous id→status map, in
// list order, then appends removals.
func diff(previous map[string]domain.RequestStatus, current []domain.TransportRequest) []Change {
	var changes []Change
	seen := make(map[string]struct{}, len(current))
	for _, req := range current {
		seen[req.ID] = struct{}{}
		before, ok := previous[req.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: ChangeCreated, Request: req, To: req.Status})
		case before != req.Status:
			changes = append(changes, Change{Kind: ChangeTransitioned, Request: req, From: before, To: req.Status})
		}
	}
	for id, status := range previous {
		if _, ok := seen[id]; !ok {
			changes = append(changes, Change{
				Kind:    ChangeRemoved,
				Request: domain.TransportRequest{ID: id, Status: status},
				From:    status,
			})
		}
	}
	return changes
}

func (w *Watcher) emit(ctx context.Context, change Change) {
	changesTotal.WithLabelValues(string(change.Kind)).Inc()
	switch change.Kind {
	case ChangeCreated:
		// The very first poll seeds the snapshot; alerting on every
		// pre-existing request would spam the operator on startup.
		if !w.primed {
			return
		}
		w.logger.Info("transport request created",
			zap.String("request_id", change.Request.ID),
			zap.String("priority", string(change.Request.Priority)),
		)
		w.notify(ctx, domain.SeverityInfo, "Nueva solicitud", "a new transport request arrived")
	case ChangeTransitioned:
		w.logger.Info("transport request transitioned",
			zap.String("request_id", change.Request.ID),
			zap.String("from", string(change.From)),
			zap.String("to", string(change.To)),
		)
	case ChangeRemoved:
		w.logger.Warn("transport request disappeared from queue",
			zap.String("request_id", change.Request.ID),
		)
	}
	if w.OnChange != nil {
		w.OnChange(change)
	}
	if w.events != nil {
		if err := w.events.Publish(ctx, change); err != nil {
			w.logger.Warn("change event publish failed", zap.Error(err))
		}
	}
}

func (w *Watcher) reportPollFailure(ctx context.Context, err error) {
	w.logger.Warn("request queue poll failed", zap.Error(err))
	w.notify(ctx, domain.SeverityError, "Solicitudes", "could not refresh the request queue")
}

func (w *Watcher) notify(ctx context.Context, severity domain.Severity, title, body string) {
	if w.notifier == nil || ctx.Err() != nil {
		return
	}
	w.notifier.Notify(ctx, domain.Notification{Severity: severity, Title: title, Body: body})
}

func pollKind(forced bool) string {
	if forced {
		return "forced"
	}
	return "auto"
}
