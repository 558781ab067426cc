package roster

import (
	"sync"
	"time"

	"github.com/example/fleetwatch/internal/fleet/domain"
)

// Store holds the latest fleet roster snapshot. Readers always observe a
// complete snapshot: Replace swaps the whole slice under the lock, never
// merging units field by field, so a partially refreshed roster is never
// visible.
type Store struct {
	mu        sync.RWMutex
	units     []domain.Unit
	byID      map[string]domain.Unit
	refreshed time.Time
}

// NewStore constructs an empty roster store.
func NewStore() *Store {
	return &Store{byID: make(map[string]domain.Unit)}
}

// Replace installs a fresh snapshot atomically.
func (s *Store) Replace(units []domain.Unit, at time.Time) {
	byID := make(map[string]domain.Unit, len(units))
	for _, unit := range units {
		byID[unit.ID] = unit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = append([]domain.Unit(nil), units...)
	s.byID = byID
	s.refreshed = at
}

// Apply updates a single unit's position in place, used by the push-based
// location ingest. The rest of the unit record is preserved; unknown units
// are ignored until the next full snapshot carries them. Reports whether the
// unit was known.
func (s *Store) Apply(unitID string, point domain.GeoPoint, label string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	unit, ok := s.byID[unitID]
	if !ok {
		return false
	}
	unit.Position = &domain.GeoPoint{Lat: point.Lat, Lng: point.Lng}
	if label != "" {
		unit.LocationLabel = label
	}
	unit.UpdatedAt = at
	s.byID[unitID] = unit
	for i := range s.units {
		if s.units[i].ID == unitID {
			s.units[i] = unit
			break
		}
	}
	return true
}

// Units returns the current snapshot.
func (s *Store) Units() []domain.Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Unit(nil), s.units...)
}

// Unit returns one unit by id.
func (s *Store) Unit(id string) (domain.Unit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.byID[id]
	return unit, ok
}

// RefreshedAt reports when the snapshot was last replaced.
func (s *Store) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshed
}

// Stats counts units per status category for the dashboard header.
func (s *Store) Stats(catalog domain.StatusCatalog) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[string]int, 3)
	for _, unit := range s.units {
		stats[catalog.Category(unit.Status).String()]++
	}
	return stats
}
