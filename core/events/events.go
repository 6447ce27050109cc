// Package events defines the records published by the core for external
// notification fan-out. Delivery is best-effort; the core never blocks on it.
package events

import "time"

// Event is implemented by every record published on the bus. Priority events
// bypass normal notification batching.
type Event interface {
	Kind() string
	Priority() bool
}

// RideStatusChanged is published on every ride lifecycle transition.
type RideStatusChanged struct {
	RideID    string    `json:"ride_id"`
	UnitID    string    `json:"unit_id"`
	RiderID   string    `json:"rider_id"`
	OldState  string    `json:"old_state"`
	NewState  string    `json:"new_state"`
	Timestamp time.Time `json:"timestamp"`
}

func (RideStatusChanged) Kind() string   { return "ride_status_changed" }
func (RideStatusChanged) Priority() bool { return false }

// RequestExpired is published exactly once when a request ages past expiry.
type RequestExpired struct {
	RequestID string    `json:"request_id"`
	RiderID   string    `json:"rider_id"`
	OldState  string    `json:"old_state"`
	NewState  string    `json:"new_state"`
	Timestamp time.Time `json:"timestamp"`
}

func (RequestExpired) Kind() string   { return "request_expired" }
func (RequestExpired) Priority() bool { return false }

// EmergencyRaised is published when an escalation is opened or refreshed.
type EmergencyRaised struct {
	EscalationID string    `json:"escalation_id"`
	RideID       string    `json:"ride_id"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
}

func (EmergencyRaised) Kind() string   { return "emergency_raised" }
func (EmergencyRaised) Priority() bool { return true }

// LowBattery is published when a telemetry update drops a unit below the
// dispatchable battery floor.
type LowBattery struct {
	UnitID    string    `json:"unit_id"`
	Battery   float64   `json:"battery"`
	Zone      string    `json:"zone"`
	Timestamp time.Time `json:"timestamp"`
}

func (LowBattery) Kind() string   { return "low_battery" }
func (LowBattery) Priority() bool { return false }
