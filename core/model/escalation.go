package model

import "time"

// Escalation is an open emergency raised on a ride. It is cleared only by
// explicit operator acknowledgment, never by ride status transitions.
type Escalation struct {
	ID             string
	RideID         string
	Reason         string
	RaisedAt       time.Time
	UpdatedAt      time.Time // bumped when a repeated raise refreshes the reason
	Acknowledged   bool
	AcknowledgedAt time.Time
}
