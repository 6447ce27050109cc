package dispatch

import "errors"

// ErrNoUnitAvailable is returned by a manual assignment when the requested
// unit cannot take the ride.
var ErrNoUnitAvailable = errors.New("no unit available")
