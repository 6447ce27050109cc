package model

import "time"

// UnitStatus describes the operational state of a mobility unit.
type UnitStatus int

const (
	UnitAvailable UnitStatus = iota
	UnitReserved
	UnitInService
	UnitCharging
	UnitOutOfService
)

// String returns a human-readable representation of the unit status.
func (s UnitStatus) String() string {
	switch s {
	case UnitAvailable:
		return "available"
	case UnitReserved:
		return "reserved"
	case UnitInService:
		return "in_service"
	case UnitCharging:
		return "charging"
	case UnitOutOfService:
		return "out_of_service"
	default:
		return "unknown"
	}
}

// Unit represents a mobility-assist unit tracked by the fleet registry.
type Unit struct {
	ID            string
	Status        UnitStatus
	Battery       float64   // charge level between 0 and 100
	Zone          string    // facility zone identifier of the last report
	LastHeartbeat time.Time // timestamp of the last applied telemetry
}

// Dispatchable returns true if the unit can be offered to a new ride given the
// battery floor in percent.
func (u Unit) Dispatchable(batteryFloor float64) bool {
	return u.Status == UnitAvailable && u.Battery >= batteryFloor
}
