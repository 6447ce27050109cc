package metrics

import (
	"time"

	coremetrics "github.com/charujain10/smartchair-dispatch/core/metrics"
)

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordMatch forwards the record to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordMatch(results []coremetrics.MatchResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordMatch(results); err != nil {
			return err
		}
	}
	return nil
}

// RecordRideTransition forwards lifecycle changes.
func (m *MultiSink) RecordRideTransition(tr coremetrics.RideTransition) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.RideTransitionRecorder); ok {
			if err := rec.RecordRideTransition(tr); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFleetSize forwards pool snapshots.
func (m *MultiSink) RecordFleetSize(available, total int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.FleetSizeRecorder); ok {
			if err := rec.RecordFleetSize(available, total); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordRequestExpired forwards aged-out requests.
func (m *MultiSink) RecordRequestExpired(requestID string, waited time.Duration) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ExpiryRecorder); ok {
			if err := rec.RecordRequestExpired(requestID, waited); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordEmergency forwards raised escalations.
func (m *MultiSink) RecordEmergency(rideID string) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.EmergencyRecorder); ok {
			if err := rec.RecordEmergency(rideID); err != nil {
				return err
			}
		}
	}
	return nil
}
