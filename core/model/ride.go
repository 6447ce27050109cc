package model

import "time"

// RideStatus describes the lifecycle state of an accepted ride.
type RideStatus int

const (
	RideAssigned RideStatus = iota
	RideEnRoutePickup
	RideInTransit
	RideArrived
	RideCancelled
)

// String returns a human-readable representation of the ride status.
func (s RideStatus) String() string {
	switch s {
	case RideAssigned:
		return "assigned"
	case RideEnRoutePickup:
		return "en_route_pickup"
	case RideInTransit:
		return "in_transit"
	case RideArrived:
		return "arrived"
	case RideCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseRideStatus maps a stored status string back to its RideStatus. Unknown
// strings map to RideCancelled, the safest terminal reading.
func ParseRideStatus(s string) RideStatus {
	switch s {
	case "assigned":
		return RideAssigned
	case "en_route_pickup":
		return RideEnRoutePickup
	case "in_transit":
		return RideInTransit
	case "arrived":
		return RideArrived
	default:
		return RideCancelled
	}
}

// Terminal reports whether the status admits no further transitions.
func (s RideStatus) Terminal() bool {
	return s == RideArrived || s == RideCancelled
}

// DestinationChange records one destination override on an active ride.
type DestinationChange struct {
	Zone      string    `json:"zone"`
	Timestamp time.Time `json:"timestamp"`
}

// Ride is the accepted pairing of one request and one unit. The ride owns the
// reservation on its unit for its whole lifetime.
type Ride struct {
	ID          string
	RequestID   string
	RiderID     string
	UnitID      string
	Pickup      string
	Destination string
	Status      RideStatus
	Progress    float64 // fraction in [0,1], non-decreasing while in transit
	Overrides   []DestinationChange
	Emergency   bool
	CreatedAt   time.Time
	CompletedAt time.Time // set when the ride reaches a terminal state
}
