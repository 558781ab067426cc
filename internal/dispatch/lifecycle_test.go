package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/fleetwatch/internal/dispatch"
	"github.com/example/fleetwatch/internal/fleet/domain"
)

func seededWatcher(t *testing.T, backend *queueBackend) *dispatch.Watcher {
	t.Helper()
	w := newWatcher(t, backend, nil, nil)
	require.NoError(t, w.Poll(context.Background()))
	return w
}

func TestAcceptSubmitsTransition(t *testing.T) {
	backend := &queueBackend{}
	backend.setRequests(pending("r-1"))
	w := seededWatcher(t, backend)
	lc := dispatch.NewLifecycle(backend, w, nil, nil)

	require.NoError(t, lc.Accept(context.Background(), "r-1"))

	require.Equal(t, []domain.RequestStatus{domain.StatusInProcess}, backend.updates)

	// The local snapshot is only updated by the next poll, never directly.
	status, ok := w.StatusOf("r-1")
	require.True(t, ok)
	require.Equal(t, domain.StatusPending, status)
}

func TestRejectSubmitsCancellation(t *testing.T) {
	backend := &queueBackend{}
	backend.setRequests(pending("r-1"))
	w := seededWatcher(t, backend)
	lc := dispatch.NewLifecycle(backend, w, nil, nil)

	require.NoError(t, lc.Reject(context.Background(), "r-1"))
	require.Equal(t, []domain.RequestStatus{domain.StatusCancelled}, backend.updates)
}

func TestAcceptNonPendingIsInvalid(t *testing.T) {
	backend := &queueBackend{}
	backend.setRequests(domain.TransportRequest{ID: "r-1", Status: domain.StatusCompleted})
	w := seededWatcher(t, backend)
	lc := dispatch.NewLifecycle(backend, w, nil, nil)

	err := lc.Accept(context.Background(), "r-1")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.Empty(t, backend.updates)
}

func TestAcceptUnknownRequest(t *testing.T) {
	backend := &queueBackend{}
	w := seededWatcher(t, backend)
	lc := dispatch.NewLifecycle(backend, w, nil, nil)

	err := lc.Accept(context.Background(), "r-ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackendRejectionSurfacesAndNotifies(t *testing.T) {
	backend := &queueBackend{}
	backend.setRequests(pending("r-1"))
	w := seededWatcher(t, backend)
	notifier := &recordingNotifier{}
	lc := dispatch.NewLifecycle(backend, w, notifier, nil)

	backend.mu.Lock()
	backend.updateErr = errors.New("handled by another operator")
	backend.mu.Unlock()

	err := lc.Accept(context.Background(), "r-1")
	require.Error(t, err)
	require.Equal(t, 1, notifier.count())

	// The queue still shows the confirmed backend state.
	status, _ := w.StatusOf("r-1")
	require.Equal(t, domain.StatusPending, status)
}
