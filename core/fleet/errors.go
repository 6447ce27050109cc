package fleet

import "errors"

// ErrNotFound is returned when the unit id is unknown to the registry.
var ErrNotFound = errors.New("unit not found")

// ErrAlreadyReserved is returned when a reservation races with another caller
// or the unit is otherwise not in the available state.
var ErrAlreadyReserved = errors.New("unit already reserved")

// ErrDuplicateUnit is returned when registering an id twice.
var ErrDuplicateUnit = errors.New("unit already registered")

// ErrStaleTelemetry is returned when a report is older than the last applied
// one. Stale reports are expected under at-least-once delivery and are
// dropped, not propagated to callers.
var ErrStaleTelemetry = errors.New("stale telemetry")
