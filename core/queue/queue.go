// Package queue holds the authoritative state of every ride request. Pending
// requests form a FIFO; a time-based sweep expires requests that were never
// matched, and expiry is reported as an event rather than silently dropped.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charujain10/smartchair-dispatch/core/events"
	"github.com/charujain10/smartchair-dispatch/core/logger"
	"github.com/charujain10/smartchair-dispatch/core/metrics"
	"github.com/charujain10/smartchair-dispatch/core/model"
	"github.com/charujain10/smartchair-dispatch/internal/eventbus"
)

// Config defines request queue settings.
type Config struct {
	// ExpirySeconds is how long an unmatched request stays pending.
	ExpirySeconds int `json:"expiry_seconds"`
	// SweepSeconds is the interval of the expiry sweep.
	SweepSeconds int `json:"sweep_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ExpirySeconds <= 0 {
		c.ExpirySeconds = 120
	}
	if c.SweepSeconds <= 0 {
		c.SweepSeconds = 5
	}
}

// Queue is the in-memory request store.
type Queue struct {
	mu      sync.Mutex
	reqs    map[string]*model.Request
	pending []string          // FIFO of pending request ids
	byRider map[string]string // rider id -> non-terminal request id

	expiry  time.Duration
	sweep   time.Duration
	log     logger.Logger
	bus     *eventbus.Bus[events.Event]
	metrics metrics.MetricsSink
	kick    chan struct{}

	now func() time.Time
}

// New creates an empty queue.
func New(cfg Config, bus *eventbus.Bus[events.Event], sink metrics.MetricsSink, log logger.Logger) *Queue {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Queue{
		reqs:    make(map[string]*model.Request),
		byRider: make(map[string]string),
		expiry:  time.Duration(cfg.ExpirySeconds) * time.Second,
		sweep:   time.Duration(cfg.SweepSeconds) * time.Second,
		log:     log,
		bus:     bus,
		metrics: sink,
		kick:    make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Changed signals whenever a new request becomes pending. The dispatcher
// selects on it to start a matching cycle without waiting for the next tick.
func (q *Queue) Changed() <-chan struct{} { return q.kick }

// Submit registers a new ride request and returns it. A rider may hold at
// most one non-terminal request at a time.
func (q *Queue) Submit(riderID, pickup, destination string) (model.Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, busy := q.byRider[riderID]; busy {
		return model.Request{}, ErrRiderBusy
	}
	req := &model.Request{
		ID:          uuid.NewString(),
		RiderID:     riderID,
		Pickup:      pickup,
		Destination: destination,
		Status:      model.RequestPending,
		CreatedAt:   q.now(),
	}
	q.reqs[req.ID] = req
	q.pending = append(q.pending, req.ID)
	q.byRider[riderID] = req.ID
	q.log.Infof("request %s: %s -> %s for rider %s", req.ID, pickup, destination, riderID)
	select {
	case q.kick <- struct{}{}:
	default:
	}
	return *req, nil
}

// Get returns a copy of the request.
func (q *Queue) Get(id string) (model.Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.reqs[id]
	if !ok {
		return model.Request{}, ErrNotFound
	}
	return *req, nil
}

// Cancel terminates a pending request. Cancelling twice yields
// ErrAlreadyTerminal; cancelling a matched request yields ErrAssigned so the
// caller can cancel the ride instead.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.reqs[id]
	if !ok {
		return ErrNotFound
	}
	switch req.Status {
	case model.RequestCancelled, model.RequestExpired:
		return ErrAlreadyTerminal
	case model.RequestAssigned:
		return ErrAssigned
	}
	req.Status = model.RequestCancelled
	q.removePending(id)
	delete(q.byRider, req.RiderID)
	return nil
}

// Expire forces a single request past its timeout. Used by the sweep and by
// tests; terminal requests are left untouched.
func (q *Queue) Expire(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.reqs[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status != model.RequestPending {
		return ErrAlreadyTerminal
	}
	q.expireLocked(req)
	return nil
}

func (q *Queue) expireLocked(req *model.Request) {
	req.Status = model.RequestExpired
	q.removePending(req.ID)
	delete(q.byRider, req.RiderID)
	q.log.Warnf("request %s expired after %s", req.ID, q.expiry)
	if rec, ok := q.metrics.(metrics.ExpiryRecorder); ok {
		if err := rec.RecordRequestExpired(req.ID, q.now().Sub(req.CreatedAt)); err != nil {
			q.log.Errorf("metrics error: %v", err)
		}
	}
	if q.bus != nil {
		q.bus.Publish(events.RequestExpired{
			RequestID: req.ID,
			RiderID:   req.RiderID,
			OldState:  model.RequestPending.String(),
			NewState:  model.RequestExpired.String(),
			Timestamp: q.now(),
		})
	}
}

// PeekPending returns pending requests oldest-first.
func (q *Queue) PeekPending() []model.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Request, 0, len(q.pending))
	for _, id := range q.pending {
		out = append(out, *q.reqs[id])
	}
	return out
}

// Assign runs fn inside the queue's critical section if, and only if, the
// request is still pending. fn creates the ride and returns its id; on
// success the request flips to assigned atomically. This ordering is what
// lets a concurrent cancellation win: either it terminates the request before
// fn runs, and the caller sees ErrNotPending and releases its reservation, or
// the request is already assigned and cancellation goes through the ride.
func (q *Queue) Assign(id string, fn func(model.Request) (string, error)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.reqs[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status != model.RequestPending {
		return ErrNotPending
	}
	rideID, err := fn(*req)
	if err != nil {
		return err
	}
	req.Status = model.RequestAssigned
	req.RideID = rideID
	q.removePending(id)
	return nil
}

// Detach frees the rider slot when the assigned ride reaches a terminal
// state, so the rider can submit again. The request record keeps its assigned
// status; ride history lives in the archive.
func (q *Queue) Detach(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if req, ok := q.reqs[id]; ok && req.Status == model.RequestAssigned {
		delete(q.byRider, req.RiderID)
	}
}

// Run sweeps for expired requests until the context is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			q.sweepExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) sweepExpired() {
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := q.now().Add(-q.expiry)
	// pending is FIFO, so stop at the first request young enough to keep.
	for len(q.pending) > 0 {
		req := q.reqs[q.pending[0]]
		if req.CreatedAt.After(cutoff) {
			return
		}
		q.expireLocked(req)
	}
}

func (q *Queue) removePending(id string) {
	for i, pid := range q.pending {
		if pid == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}
