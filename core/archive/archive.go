// Package archive retains completed rides as immutable records for the rider
// history boundary.
package archive

import (
	"errors"
	"sort"
	"sync"

	"github.com/charujain10/smartchair-dispatch/core/model"
)

// ErrNotFound is returned when no archived ride has the given id.
var ErrNotFound = errors.New("archived ride not found")

// Store persists terminal rides.
type Store interface {
	Save(model.Ride) error
	Get(id string) (model.Ride, error)
	ListByRider(riderID string) ([]model.Ride, error)
}

// MemoryStore is the default in-memory archive.
type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]model.Ride
}

// NewMemoryStore creates an empty archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]model.Ride)}
}

// Save stores the ride record. Saving the same id twice keeps the first
// record; archived rides are immutable.
func (s *MemoryStore) Save(r model.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rides[r.ID]; !ok {
		s.rides[r.ID] = r
	}
	return nil
}

// Get returns the archived ride.
func (s *MemoryStore) Get(id string) (model.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rides[id]
	if !ok {
		return model.Ride{}, ErrNotFound
	}
	return r, nil
}

// ListByRider returns the rider's completed rides, most recent first.
func (s *MemoryStore) ListByRider(riderID string) ([]model.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Ride
	for _, r := range s.rides {
		if r.RiderID == riderID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}
