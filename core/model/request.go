package model

import "time"

// RequestStatus describes the lifecycle state of a ride request.
type RequestStatus int

const (
	RequestPending RequestStatus = iota
	RequestAssigned
	RequestCancelled
	RequestExpired
)

// String returns a human-readable representation of the request status.
func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestAssigned:
		return "assigned"
	case RequestCancelled:
		return "cancelled"
	case RequestExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == RequestCancelled || s == RequestExpired
}

// Request is a rider's ask for transport between two facility zones.
type Request struct {
	ID          string
	RiderID     string
	Pickup      string
	Destination string
	Status      RequestStatus
	CreatedAt   time.Time
	RideID      string // set once the request is assigned
}
