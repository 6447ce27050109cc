// Package escalation is the emergency side-channel. Raising an escalation
// never interrupts the ride's status machine; clearing one always requires
// explicit operator acknowledgment.
package escalation

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charujain10/smartchair-dispatch/core/events"
	"github.com/charujain10/smartchair-dispatch/core/logger"
	"github.com/charujain10/smartchair-dispatch/core/metrics"
	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/core/ride"
	"github.com/charujain10/smartchair-dispatch/internal/eventbus"
)

// ErrNotFound is returned when no open escalation has the given id.
var ErrNotFound = errors.New("escalation not found")

// Store tracks open escalations, at most one per ride.
type Store struct {
	mu     sync.Mutex
	open   map[string]*model.Escalation
	byRide map[string]string

	rides   *ride.Machine
	bus     *eventbus.Bus[events.Event]
	log     logger.Logger
	metrics metrics.MetricsSink

	now func() time.Time
}

// NewStore creates an empty escalation store.
func NewStore(rides *ride.Machine, bus *eventbus.Bus[events.Event], sink metrics.MetricsSink, log logger.Logger) *Store {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Store{
		open:    make(map[string]*model.Escalation),
		byRide:  make(map[string]string),
		rides:   rides,
		bus:     bus,
		log:     log,
		metrics: sink,
		now:     time.Now,
	}
}

// Raise opens an emergency on the ride, or refreshes the already-open one: a
// second raise updates the reason and timestamp instead of duplicating.
func (s *Store) Raise(rideID, reason string) (model.Escalation, error) {
	if _, err := s.rides.Get(rideID); err != nil {
		return model.Escalation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if id, ok := s.byRide[rideID]; ok {
		esc := s.open[id]
		esc.Reason = reason
		esc.UpdatedAt = now
		s.publishRaised(*esc)
		return *esc, nil
	}
	esc := &model.Escalation{
		ID:        uuid.NewString(),
		RideID:    rideID,
		Reason:    reason,
		RaisedAt:  now,
		UpdatedAt: now,
	}
	s.open[esc.ID] = esc
	s.byRide[rideID] = esc.ID
	if err := s.rides.SetEmergency(rideID, true); err != nil {
		s.log.Errorf("escalation %s: set emergency flag: %v", esc.ID, err)
	}
	if rec, ok := s.metrics.(metrics.EmergencyRecorder); ok {
		if err := rec.RecordEmergency(rideID); err != nil {
			s.log.Errorf("metrics error: %v", err)
		}
	}
	s.log.Warnf("emergency raised on ride %s: %s", rideID, reason)
	s.publishRaised(*esc)
	return *esc, nil
}

// Acknowledge clears an open escalation. Only this call clears the flag;
// ride status transitions never do.
func (s *Store) Acknowledge(id string) error {
	s.mu.Lock()
	esc, ok := s.open[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	esc.Acknowledged = true
	esc.AcknowledgedAt = s.now()
	delete(s.open, id)
	delete(s.byRide, esc.RideID)
	rideID := esc.RideID
	s.mu.Unlock()

	if err := s.rides.SetEmergency(rideID, false); err != nil && !errors.Is(err, ride.ErrNotFound) {
		s.log.Errorf("escalation %s: clear emergency flag: %v", id, err)
	}
	s.log.Infof("emergency %s acknowledged", id)
	return nil
}

// Open returns the open escalation for the ride, if any.
func (s *Store) Open(rideID string) (model.Escalation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRide[rideID]
	if !ok {
		return model.Escalation{}, false
	}
	return *s.open[id], true
}

// List returns every open escalation ordered by raise time.
func (s *Store) List() []model.Escalation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Escalation, 0, len(s.open))
	for _, esc := range s.open {
		out = append(out, *esc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaisedAt.Before(out[j].RaisedAt) })
	return out
}

func (s *Store) publishRaised(esc model.Escalation) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.EmergencyRaised{
		EscalationID: esc.ID,
		RideID:       esc.RideID,
		Reason:       esc.Reason,
		Timestamp:    esc.UpdatedAt,
	})
}
