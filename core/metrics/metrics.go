// Package metrics defines the sink interfaces the core records observability
// data through. Implementations live under infra/metrics; optional
// capabilities are modelled as narrow interfaces the caller type-asserts.
package metrics

import "time"

// MatchResult represents one request/unit pairing attempt during a dispatch
// cycle.
type MatchResult struct {
	RequestID  string
	UnitID     string
	Pickup     string
	Matched    bool
	Candidates int // candidates tried before the reservation stuck
	Latency    time.Duration
	Time       time.Time
}

// MetricsSink records match results for observability purposes.
type MetricsSink interface {
	RecordMatch(results []MatchResult) error
}

// RideTransition is one ride lifecycle state change.
type RideTransition struct {
	RideID string
	From   string
	To     string
	Time   time.Time
}

// RideTransitionRecorder records ride lifecycle transitions.
type RideTransitionRecorder interface {
	RecordRideTransition(tr RideTransition) error
}

// FleetSizeRecorder records the size of the dispatchable pool per cycle.
type FleetSizeRecorder interface {
	RecordFleetSize(available, total int) error
}

// ExpiryRecorder records requests that aged out unmatched.
type ExpiryRecorder interface {
	RecordRequestExpired(requestID string, waited time.Duration) error
}

// EmergencyRecorder records raised escalations.
type EmergencyRecorder interface {
	RecordEmergency(rideID string) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordMatch([]MatchResult) error                  { return nil }
func (NopSink) RecordRideTransition(RideTransition) error        { return nil }
func (NopSink) RecordFleetSize(int, int) error                   { return nil }
func (NopSink) RecordRequestExpired(string, time.Duration) error { return nil }
func (NopSink) RecordEmergency(string) error                     { return nil }
