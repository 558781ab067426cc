package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// IdempotencyStore caches intake responses keyed by idempotency key.
type IdempotencyStore interface {
	GetResponse(ctx context.Context, key string) ([]byte, bool, error)
	PutResponse(ctx context.Context, key string, payload []byte) error
}

// MemoryIdempotencyStore keeps cached responses in memory.
type MemoryIdempotencyStore struct {
	mu        sync.RWMutex
	responses map[string][]byte
}

// NewMemoryIdempotencyStore constructs the store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{responses: make(map[string][]byte)}
}

// GetResponse retrieves a cached response.
func (m *MemoryIdempotencyStore) GetResponse(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.responses[key]
	return append([]byte(nil), value...), ok, nil
}

// PutResponse stores a response payload.
func (m *MemoryIdempotencyStore) PutResponse(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key] = append([]byte(nil), payload...)
	return nil
}

// Intake submits new transport requests. Submissions validate locally before
// any network call, honour idempotency keys, and trigger a forced watcher
// poll so the new request shows up without waiting a full interval.
type Intake struct {
	backend    domain.Backend
	watcher    *Watcher
	idempotent IdempotencyStore
	logger     *zap.Logger
}

// NewIntake constructs the intake service.
func NewIntake(backend domain.Backend, watcher *Watcher, idempotent IdempotencyStore, logger *zap.Logger) *Intake {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Intake{backend: backend, watcher: watcher, idempotent: idempotent, logger: logger}
}

// Submit validates and creates a transport request.
func (i *Intake) Submit(ctx context.Context, key string, in domain.CreateRequestInput) (domain.TransportRequest, error) {
	if err := in.Validate(); err != nil {
		return domain.TransportRequest{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if key != "" && i.idempotent != nil {
		if cached, ok, err := i.idempotent.GetResponse(ctx, key); err == nil && ok {
			var req domain.TransportRequest
			if err := json.Unmarshal(cached, &req); err == nil {
				return req, nil
			}
		}
	}

	created, err := i.backend.CreateRequest(ctx, in)
	if err != nil {
		return domain.TransportRequest{}, fmt.Errorf("submit request: %w", err)
	}

	if key != "" && i.idempotent != nil {
		if payload, err := json.Marshal(created); err == nil {
			_ = i.idempotent.PutResponse(ctx, key, payload)
		}
	}

	i.logger.Info("transport request submitted",
		zap.String("request_id", created.ID),
		zap.String("priority", string(created.Priority)),
	)
	if i.watcher != nil {
		i.watcher.RequestPoll()
	}
	return created, nil
}
