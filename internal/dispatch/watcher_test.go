package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/fleetwatch/internal/dispatch"
	"github.com/example/fleetwatch/internal/fleet/domain"
)

type queueBackend struct {
	domain.Backend

	mu          sync.Mutex
	requests    []domain.TransportRequest
	listErr     error
	listCalls   int
	updates     []domain.RequestStatus
	updateErr   error
	createdReqs []domain.CreateRequestInput
}

func (b *queueBackend) ListRequests(_ context.Context) ([]domain.TransportRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]domain.TransportRequest(nil), b.requests...), nil
}

func (b *queueBackend) UpdateRequestStatus(_ context.Context, id string, status domain.RequestStatus) (domain.TransportRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updateErr != nil {
		return domain.TransportRequest{}, b.updateErr
	}
	b.updates = append(b.updates, status)
	return domain.TransportRequest{ID: id, Status: status}, nil
}

func (b *queueBackend) CreateRequest(_ context.Context, in domain.CreateRequestInput) (domain.TransportRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createdReqs = append(b.createdReqs, in)
	return domain.TransportRequest{ID: "r-created", Status: domain.StatusPending, Priority: in.Priority}, nil
}

func (b *queueBackend) setRequests(reqs ...domain.TransportRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = reqs
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []dispatch.Change
}

func (p *recordingPublisher) Publish(_ context.Context, change dispatch.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return nil
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func pending(id string) domain.TransportRequest {
	return domain.TransportRequest{ID: id, Status: domain.StatusPending, Priority: domain.PriorityMedium}
}

func newWatcher(t *testing.T, backend *queueBackend, notifier domain.Notifier, events dispatch.EventPublisher) *dispatch.Watcher {
	t.Helper()
	w, err := dispatch.NewWatcher(backend, notifier, events, &manualClock{t: time.Unix(0, 0)}, nil, dispatch.WatcherConfig{})
	require.NoError(t, err)
	return w
}

func TestFirstPollSeedsWithoutCreatedAlerts(t *testing.T) {
	backend := &queueBackend{}
	backend.setRequests(pending("r-1"), pending("r-2"))
	notifier := &recordingNotifier{}
	var changes []dispatch.Change

	w := newWatcher(t, backend, notifier, nil)
	w.OnChange = func(c dispatch.Change) { changes = append(changes, c) }

	require.NoError(t, w.Poll(context.Background()))
	require.Empty(t, changes)
	require.Equal(t, 0, notifier.count())
	require.Len(t, w.Requests(), 2)
}

func TestDiffClassifiesInListOrder(t *testing.T) {
	backend := &queueBackend{}
	backend.setRequests(
		pending("r-a"),
		domain.TransportRequest{ID: "r-b", Status: domain.StatusPending},
	)
	events := &recordingPublisher{}
	w := newWatcher(t, backend, nil, events)
	require.NoError(t, w.Poll(context.Background()))

	var changes []dispatch.Change
	w.OnChange = func(c dispatch.Change) { changes = append(changes, c) }

	backend.setRequests(
		pending("r-a"),
		domain.TransportRequest{ID: "r-b", Status: domain.StatusCompleted},
		pending("r-c"),
	)
	require.NoError(t, w.Poll(context.Background()))

	require.Len(t, changes, 2)
	require.Equal(t, dispatch.ChangeTransitioned, changes[0].Kind)
	require.Equal(t, "r-b", changes[0].Request.ID)
	require.Equal(t, domain.StatusPending, changes[0].From)
	require.Equal(t, domain.StatusCompleted, changes[0].To)
	require.Equal(t, dispatch.ChangeCreated, changes[1].Kind)
	require.Equal(t, "r-c", changes[1].Request.ID)

	// Every emitted change also reaches the event publisher.
	require.Len(t, events.changes, 2)
}

func TestRemovedRequestReportedNotFatal(t *testing.T) {
	backend := &queueBackend{}
	backend.setRequests(pending("r-1"), pending("r-2"))
	w := newWatcher(t, backend, nil, nil)
	require.NoError(t, w.Poll(context.Background()))

	var changes []dispatch.Change
	w.OnChange = func(c dispatch.Change) { changes = append(changes, c) }

	backend.setRequests(pending("r-1"))
	require.NoError(t, w.Poll(context.Background()))

	require.Len(t, changes, 1)
	require.Equal(t, dispatch.ChangeRemoved, changes[0].Kind)
	require.Equal(t, "r-2", changes[0].Request.ID)
	require.Len(t, w.Requests(), 1)
}

func TestPollFailureKeepsSnapshot(t *testing.T) {
	backend := &queueBackend{}
	backend.setRequests(pending("r-1"))
	w := newWatcher(t, backend, nil, nil)
	require.NoError(t, w.Poll(context.Background()))

	backend.mu.Lock()
	backend.listErr = errors.New("backend down")
	backend.mu.Unlock()

	require.Error(t, w.Poll(context.Background()))
	require.Len(t, w.Requests(), 1)

	status, ok := w.StatusOf("r-1")
	require.True(t, ok)
	require.Equal(t, domain.StatusPending, status)
}

func TestNewRequestAlertAfterSeed(t *testing.T) {
	backend := &queueBackend{}
	backend.setRequests(pending("r-1"))
	notifier := &recordingNotifier{}
	w := newWatcher(t, backend, notifier, nil)
	require.NoError(t, w.Poll(context.Background()))
	require.Equal(t, 0, notifier.count())

	backend.setRequests(pending("r-1"), pending("r-2"))
	require.NoError(t, w.Poll(context.Background()))

	require.Equal(t, 1, notifier.count())
	notifier.mu.Lock()
	require.Equal(t, "Nueva solicitud", notifier.notes[0].Title)
	notifier.mu.Unlock()
}

func TestRequestPollCoalesces(t *testing.T) {
	backend := &queueBackend{}
	w := newWatcher(t, backend, nil, nil)

	// Multiple pending requests collapse into a single queued poll.
	w.RequestPoll()
	w.RequestPoll()
	w.RequestPoll()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		backend.mu.Lock()
		calls := backend.listCalls
		backend.mu.Unlock()
		if calls >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	backend.mu.Lock()
	defer backend.mu.Unlock()
	// One startup poll plus exactly one coalesced forced poll.
	require.Equal(t, 2, backend.listCalls)
}
