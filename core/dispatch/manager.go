// Package dispatch pairs pending ride requests with available units. Matching
// is strictly FIFO over the pending queue; per request the candidates are the
// dispatchable units nearest to the pickup zone.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/charujain10/smartchair-dispatch/core/fleet"
	"github.com/charujain10/smartchair-dispatch/core/logger"
	"github.com/charujain10/smartchair-dispatch/core/metrics"
	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/core/queue"
	"github.com/charujain10/smartchair-dispatch/core/ride"
)

// Config holds dispatcher tuning knobs.
type Config struct {
	// MaxCandidates bounds how many reservation attempts one request gets
	// per cycle before it stays pending.
	MaxCandidates int `json:"max_candidates"`
	// CycleSeconds is the fallback matching interval; queue activity
	// triggers cycles sooner.
	CycleSeconds int `json:"cycle_seconds"`
}

func (c *Config) SetDefaults() {
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 3
	}
	if c.CycleSeconds <= 0 {
		c.CycleSeconds = 2
	}
}

// Manager runs the matching loop.
type Manager struct {
	fleet   *fleet.Registry
	queue   *queue.Queue
	rides   *ride.Machine
	metrics metrics.MetricsSink
	log     logger.Logger

	maxCandidates int
	cycle         time.Duration
	now           func() time.Time
}

// NewManager wires the dispatcher. A nil sink falls back to NopSink.
func NewManager(cfg Config, reg *fleet.Registry, q *queue.Queue, rides *ride.Machine, sink metrics.MetricsSink, log logger.Logger) *Manager {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Manager{
		fleet:         reg,
		queue:         q,
		rides:         rides,
		metrics:       sink,
		log:           log,
		maxCandidates: cfg.MaxCandidates,
		cycle:         time.Duration(cfg.CycleSeconds) * time.Second,
		now:           time.Now,
	}
}

// Run matches until the context is cancelled. Cycles fire on queue activity
// and on a ticker, so freed units pick up waiting requests without a new
// submission.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cycle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.queue.Changed():
			m.MatchCycle()
		case <-ticker.C:
			m.MatchCycle()
		}
	}
}

// MatchCycle walks the pending queue oldest-first and tries to open a ride
// for each request. It returns the number of rides opened. An unmatched
// request never blocks the ones behind it: units near a later pickup can be
// taken even while the head of the queue waits.
func (m *Manager) MatchCycle() int {
	start := m.now()
	matched := 0
	results := make([]metrics.MatchResult, 0)
	for _, req := range m.queue.PeekPending() {
		res := m.matchOne(req)
		res.Latency = m.now().Sub(start)
		res.Time = m.now()
		results = append(results, res)
		if res.Matched {
			matched++
		}
	}
	if len(results) > 0 {
		if err := m.metrics.RecordMatch(results); err != nil {
			m.log.Errorf("metrics error: %v", err)
		}
	}
	if rec, ok := m.metrics.(metrics.FleetSizeRecorder); ok {
		avail := len(m.fleet.ListAvailable(""))
		total := len(m.fleet.Snapshot())
		if err := rec.RecordFleetSize(avail, total); err != nil {
			m.log.Errorf("metrics error: %v", err)
		}
	}
	return matched
}

// matchOne reserves the nearest dispatchable unit and opens the ride inside
// the queue's assignment section. Losing the reservation race or the
// assignment race just moves on to the next candidate or leaves the request
// pending for the next cycle.
func (m *Manager) matchOne(req model.Request) metrics.MatchResult {
	res := metrics.MatchResult{RequestID: req.ID, Pickup: req.Pickup}
	for _, u := range m.fleet.ListAvailable(req.Pickup) {
		if res.Candidates >= m.maxCandidates {
			break
		}
		res.Candidates++
		if err := m.fleet.Reserve(u.ID); err != nil {
			continue
		}
		r, err := m.openRide(req.ID, u.ID)
		if err != nil {
			if errors.Is(err, queue.ErrNotPending) || errors.Is(err, queue.ErrNotFound) {
				// Cancelled or expired under us; the reservation
				// is already rolled back, stop trying.
				return res
			}
			m.log.Errorf("assign request %s to unit %s: %v", req.ID, u.ID, err)
			continue
		}
		m.log.Infof("matched request %s to unit %s, ride %s", req.ID, u.ID, r.ID)
		res.UnitID = u.ID
		res.Matched = true
		return res
	}
	return res
}

// ManualAssign lets an operator force a specific unit onto a pending request,
// bypassing the nearest-first ordering but not the availability rules.
func (m *Manager) ManualAssign(requestID, unitID string) (model.Ride, error) {
	u, err := m.fleet.Get(unitID)
	if err != nil {
		return model.Ride{}, err
	}
	if !u.Dispatchable(m.fleet.BatteryFloor()) {
		return model.Ride{}, ErrNoUnitAvailable
	}
	if err := m.fleet.Reserve(unitID); err != nil {
		return model.Ride{}, err
	}
	r, err := m.openRide(requestID, unitID)
	if err != nil {
		return model.Ride{}, err
	}
	m.log.Infof("manual assignment: request %s to unit %s, ride %s", requestID, unitID, r.ID)
	return r, nil
}

// openRide runs ride creation inside the queue's critical section and rolls
// the unit reservation back on any failure.
func (m *Manager) openRide(requestID, unitID string) (model.Ride, error) {
	var r model.Ride
	err := m.queue.Assign(requestID, func(req model.Request) (string, error) {
		created, err := m.rides.Create(req, unitID)
		if err != nil {
			return "", err
		}
		r = created
		return created.ID, nil
	})
	if err != nil {
		if rerr := m.fleet.Release(unitID); rerr != nil {
			m.log.Errorf("release unit %s after failed assignment: %v", unitID, rerr)
		}
		return model.Ride{}, err
	}
	return r, nil
}
