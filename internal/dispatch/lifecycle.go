package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// Lifecycle executes the two legal operator actions on a transport request.
// It never mutates local state optimistically: the operator-visible queue is
// only updated once the next watcher poll confirms the backend applied the
// transition, so the console can never show a status the backend has not
// acknowledged. A backend rejection (for example another operator handled
// the request first) surfaces as a generic failure and the next poll corrects
// the view.
type Lifecycle struct {
	backend  domain.Backend
	watcher  *Watcher
	notifier domain.Notifier
	logger   *zap.Logger
}

// NewLifecycle constructs the lifecycle executor.
func NewLifecycle(backend domain.Backend, watcher *Watcher, notifier domain.Notifier, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{backend: backend, watcher: watcher, notifier: notifier, logger: logger}
}

// Accept moves a pending request toward in-process.
func (l *Lifecycle) Accept(ctx context.Context, id string) error {
	return l.transition(ctx, id, domain.StatusInProcess)
}

// Reject moves a pending request toward cancelled.
func (l *Lifecycle) Reject(ctx context.Context, id string) error {
	return l.transition(ctx, id, domain.StatusCancelled)
}

func (l *Lifecycle) transition(ctx context.Context, id string, to domain.RequestStatus) error {
	current, known := l.watcher.StatusOf(id)
	if !known {
		return fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	if current != domain.StatusPending || !current.CanTransitionTo(to) {
		return fmt.Errorf("request %s is %s: %w", id, current, domain.ErrInvalidTransition)
	}

	if _, err := l.backend.UpdateRequestStatus(ctx, id, to); err != nil {
		l.logger.Warn("request transition rejected",
			zap.String("request_id", id),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		if l.notifier != nil {
			l.notifier.Notify(ctx, domain.Notification{
				Severity: domain.SeverityError,
				Title:    "Solicitudes",
				Body:     "the request could not be updated",
			})
		}
		return fmt.Errorf("transition request %s to %s: %w", id, to, err)
	}

	l.logger.Info("request transition submitted",
		zap.String("request_id", id),
		zap.String("to", string(to)),
	)
	// Confirmation arrives through the queue watcher; force a poll so the
	// operator sees it without waiting a full interval.
	l.watcher.RequestPoll()
	return nil
}
