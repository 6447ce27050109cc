package ride

import "errors"

// ErrNotFound is returned when the ride id is unknown.
var ErrNotFound = errors.New("ride not found")

// ErrInvalidTransition is returned when an operation is not legal in the
// ride's current state, e.g. cancelling an arrived ride.
var ErrInvalidTransition = errors.New("invalid ride transition")
