package model

import "time"

// Telemetry is one report from a unit's location/battery feed. Delivery is
// at-least-once, so consumers must tolerate duplicates and reordering by
// comparing timestamps.
type Telemetry struct {
	UnitID    string    `json:"unit_id"`
	Zone      string    `json:"zone"`
	Battery   float64   `json:"battery"`
	Timestamp time.Time `json:"timestamp"`
}
