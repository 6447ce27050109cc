// Package ride drives accepted rides through their lifecycle. Transitions are
// driven by unit telemetry and by time, never by wall-clock UI timers:
// progress is a derived function of zone distance, not an animation counter.
//
// States: assigned -> en_route_pickup -> in_transit -> arrived, with any
// non-terminal state able to move to cancelled. Terminal rides release their
// unit and become immutable archive records.
package ride

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charujain10/smartchair-dispatch/core/archive"
	"github.com/charujain10/smartchair-dispatch/core/events"
	"github.com/charujain10/smartchair-dispatch/core/fleet"
	"github.com/charujain10/smartchair-dispatch/core/logger"
	"github.com/charujain10/smartchair-dispatch/core/metrics"
	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/core/queue"
	"github.com/charujain10/smartchair-dispatch/core/zonemap"
	"github.com/charujain10/smartchair-dispatch/internal/eventbus"
)

// Config defines ride machine settings.
type Config struct {
	// PickupGraceSeconds promotes an assigned ride to en_route_pickup when no
	// telemetry arrives within the grace period. Soft timeout, not a failure.
	PickupGraceSeconds int `json:"pickup_grace_seconds"`
	// SweepSeconds is the interval of the grace sweep.
	SweepSeconds int `json:"sweep_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.PickupGraceSeconds <= 0 {
		c.PickupGraceSeconds = 30
	}
	if c.SweepSeconds <= 0 {
		c.SweepSeconds = 5
	}
}

type trackedRide struct {
	mu         sync.Mutex
	r          model.Ride
	baseline   float64 // hop distance of the current leg, for progress
	assignedAt time.Time
	sawReport  bool // telemetry seen since assignment
}

// Machine tracks every active ride. Rides are locked per entity; unrelated
// rides never block each other.
type Machine struct {
	mu        sync.RWMutex
	rides     map[string]*trackedRide
	byUnit    map[string]string
	byRequest map[string]string

	fleet   *fleet.Registry
	queue   *queue.Queue
	zones   *zonemap.Map
	store   archive.Store
	bus     *eventbus.Bus[events.Event]
	log     logger.Logger
	metrics metrics.MetricsSink

	grace time.Duration
	sweep time.Duration
	now   func() time.Time
}

// NewMachine creates a ride machine.
func NewMachine(cfg Config, reg *fleet.Registry, q *queue.Queue, zones *zonemap.Map, store archive.Store, bus *eventbus.Bus[events.Event], sink metrics.MetricsSink, log logger.Logger) *Machine {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Machine{
		rides:     make(map[string]*trackedRide),
		byUnit:    make(map[string]string),
		byRequest: make(map[string]string),
		fleet:     reg,
		queue:     q,
		zones:     zones,
		store:     store,
		bus:       bus,
		log:       log,
		metrics:   sink,
		grace:     time.Duration(cfg.PickupGraceSeconds) * time.Second,
		sweep:     time.Duration(cfg.SweepSeconds) * time.Second,
		now:       time.Now,
	}
}

// Create opens a ride for the matched request and reserved unit. It is called
// from inside the request queue's assignment critical section.
func (m *Machine) Create(req model.Request, unitID string) (model.Ride, error) {
	now := m.now()
	r := model.Ride{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		RiderID:     req.RiderID,
		UnitID:      unitID,
		Pickup:      req.Pickup,
		Destination: req.Destination,
		Status:      model.RideAssigned,
		CreatedAt:   now,
	}
	tr := &trackedRide{r: r, assignedAt: now}
	m.mu.Lock()
	m.rides[r.ID] = tr
	m.byUnit[unitID] = r.ID
	m.byRequest[req.ID] = r.ID
	m.mu.Unlock()
	m.log.Infof("ride %s: unit %s assigned to request %s (%s -> %s)", r.ID, unitID, req.ID, req.Pickup, req.Destination)
	m.publishTransition(r, "", model.RideAssigned.String(), now)
	return r, nil
}

// Get returns the ride, looking through active rides first and the archive
// second.
func (m *Machine) Get(id string) (model.Ride, error) {
	m.mu.RLock()
	tr, ok := m.rides[id]
	m.mu.RUnlock()
	if ok {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.r, nil
	}
	r, err := m.store.Get(id)
	if errors.Is(err, archive.ErrNotFound) {
		return model.Ride{}, ErrNotFound
	}
	return r, err
}

// Active returns all in-flight rides for the operator boundary.
func (m *Machine) Active() []model.Ride {
	m.mu.RLock()
	tracked := make([]*trackedRide, 0, len(m.rides))
	for _, tr := range m.rides {
		tracked = append(tracked, tr)
	}
	m.mu.RUnlock()
	out := make([]model.Ride, 0, len(tracked))
	for _, tr := range tracked {
		tr.mu.Lock()
		out = append(out, tr.r)
		tr.mu.Unlock()
	}
	return out
}

// ApplyTelemetry advances the ride owning the reporting unit, if any.
func (m *Machine) ApplyTelemetry(t model.Telemetry) {
	m.mu.RLock()
	rideID, ok := m.byUnit[t.UnitID]
	var tr *trackedRide
	if ok {
		tr = m.rides[rideID]
	}
	m.mu.RUnlock()
	if tr == nil {
		return
	}

	tr.mu.Lock()
	tr.sawReport = true
	switch tr.r.Status {
	case model.RideAssigned:
		m.toEnRoutePickup(tr)
		if t.Zone == tr.r.Pickup {
			m.toInTransit(tr, t.Zone)
		}
		tr.mu.Unlock()
	case model.RideEnRoutePickup:
		if t.Zone == tr.r.Pickup {
			m.toInTransit(tr, t.Zone)
		}
		tr.mu.Unlock()
	case model.RideInTransit:
		m.advance(tr, t.Zone)
		done := tr.r.Status == model.RideArrived
		tr.mu.Unlock()
		if done {
			m.finish(tr)
		}
	default:
		tr.mu.Unlock()
	}
}

// advance recomputes progress from the unit's zone. Progress is monotonically
// non-decreasing between destination changes.
func (m *Machine) advance(tr *trackedRide, zone string) {
	if zone == tr.r.Destination {
		tr.r.Progress = 1
		m.transition(tr, model.RideArrived)
		return
	}
	if tr.baseline > 0 && !math.IsInf(tr.baseline, 1) {
		rem := m.zones.Distance(zone, tr.r.Destination)
		if p := 1 - rem/tr.baseline; p > tr.r.Progress {
			tr.r.Progress = p
		}
	}
	if tr.r.Progress >= 1 {
		tr.r.Progress = 1
		m.transition(tr, model.RideArrived)
	}
}

func (m *Machine) toEnRoutePickup(tr *trackedRide) {
	m.transition(tr, model.RideEnRoutePickup)
}

func (m *Machine) toInTransit(tr *trackedRide, zone string) {
	tr.baseline = m.zones.Distance(zone, tr.r.Destination)
	tr.r.Progress = 0
	if err := m.fleet.MarkInService(tr.r.UnitID); err != nil {
		m.log.Warnf("ride %s: mark in service: %v", tr.r.ID, err)
	}
	m.transition(tr, model.RideInTransit)
}

// transition flips the status and publishes the change. Caller holds tr.mu.
func (m *Machine) transition(tr *trackedRide, to model.RideStatus) {
	from := tr.r.Status
	if from == to {
		return
	}
	now := m.now()
	tr.r.Status = to
	if to.Terminal() {
		tr.r.CompletedAt = now
	}
	if rec, ok := m.metrics.(metrics.RideTransitionRecorder); ok {
		if err := rec.RecordRideTransition(metrics.RideTransition{RideID: tr.r.ID, From: from.String(), To: to.String(), Time: now}); err != nil {
			m.log.Errorf("metrics error: %v", err)
		}
	}
	m.publishTransition(tr.r, from.String(), to.String(), now)
	m.log.Infof("ride %s: %s -> %s", tr.r.ID, from, to)
}

// finish releases the unit, archives the record and frees the rider. Called
// without tr.mu held, after the ride reached a terminal state.
func (m *Machine) finish(tr *trackedRide) {
	tr.mu.Lock()
	r := tr.r
	tr.mu.Unlock()

	if err := m.fleet.Release(r.UnitID); err != nil {
		m.log.Errorf("ride %s: release unit %s: %v", r.ID, r.UnitID, err)
	}
	m.queue.Detach(r.RequestID)
	if err := m.store.Save(r); err != nil {
		m.log.Errorf("ride %s: archive: %v", r.ID, err)
	}
	m.mu.Lock()
	delete(m.rides, r.ID)
	delete(m.byUnit, r.UnitID)
	delete(m.byRequest, r.RequestID)
	m.mu.Unlock()
}

// Cancel terminates a non-terminal ride and releases its unit immediately,
// independent of progress. Cancelling a terminal ride is rejected.
func (m *Machine) Cancel(id string) error {
	m.mu.RLock()
	tr, ok := m.rides[id]
	m.mu.RUnlock()
	if !ok {
		if _, err := m.store.Get(id); err == nil {
			return ErrInvalidTransition
		}
		return ErrNotFound
	}
	tr.mu.Lock()
	if tr.r.Status.Terminal() {
		tr.mu.Unlock()
		return ErrInvalidTransition
	}
	m.transition(tr, model.RideCancelled)
	tr.mu.Unlock()
	m.finish(tr)
	return nil
}

// CancelByRequest cancels the active ride created for the given request.
func (m *Machine) CancelByRequest(requestID string) error {
	m.mu.RLock()
	rideID, ok := m.byRequest[requestID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return m.Cancel(rideID)
}

// ChangeDestination appends a destination override while the ride is under
// way. The progress baseline is recomputed so progress stays proportional to
// the remaining distance; it may drop, but never below zero. Status is
// unchanged.
func (m *Machine) ChangeDestination(id, zone string) error {
	m.mu.RLock()
	tr, ok := m.rides[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.r.Status != model.RideEnRoutePickup && tr.r.Status != model.RideInTransit {
		return ErrInvalidTransition
	}
	tr.r.Destination = zone
	tr.r.Overrides = append(tr.r.Overrides, model.DestinationChange{Zone: zone, Timestamp: m.now()})
	if tr.r.Status == model.RideInTransit {
		cur := tr.r.Pickup
		if u, err := m.fleet.Get(tr.r.UnitID); err == nil && u.Zone != "" {
			cur = u.Zone
		}
		rem := m.zones.Distance(cur, zone)
		tr.baseline = m.zones.Distance(tr.r.Pickup, zone)
		p := 0.0
		if tr.baseline > 0 && !math.IsInf(tr.baseline, 1) && !math.IsInf(rem, 1) {
			p = 1 - rem/tr.baseline
		}
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		tr.r.Progress = p
	}
	m.log.Infof("ride %s: destination changed to %s", id, zone)
	return nil
}

// SetEmergency flips the emergency flag on an active ride. The flag is
// orthogonal to the status machine.
func (m *Machine) SetEmergency(id string, flag bool) error {
	m.mu.RLock()
	tr, ok := m.rides[id]
	m.mu.RUnlock()
	if !ok {
		if _, err := m.store.Get(id); err == nil {
			// Archived rides are immutable; the escalation store remains the
			// authority for open emergencies on completed rides.
			return nil
		}
		return ErrNotFound
	}
	tr.mu.Lock()
	tr.r.Emergency = flag
	tr.mu.Unlock()
	return nil
}

// Run promotes assigned rides past the pickup grace period until the context
// is cancelled.
func (m *Machine) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Tick()
		case <-ctx.Done():
			return
		}
	}
}

// Tick applies the grace-period soft timeout to assigned rides.
func (m *Machine) Tick() {
	cutoff := m.now().Add(-m.grace)
	m.mu.RLock()
	tracked := make([]*trackedRide, 0, len(m.rides))
	for _, tr := range m.rides {
		tracked = append(tracked, tr)
	}
	m.mu.RUnlock()
	for _, tr := range tracked {
		tr.mu.Lock()
		if tr.r.Status == model.RideAssigned && !tr.sawReport && tr.assignedAt.Before(cutoff) {
			m.toEnRoutePickup(tr)
		}
		tr.mu.Unlock()
	}
}

func (m *Machine) publishTransition(r model.Ride, from, to string, ts time.Time) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.RideStatusChanged{
		RideID:    r.ID,
		UnitID:    r.UnitID,
		RiderID:   r.RiderID,
		OldState:  from,
		NewState:  to,
		Timestamp: ts,
	})
}
