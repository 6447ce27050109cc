package queue

import "errors"

// ErrNotFound is returned when the request id is unknown.
var ErrNotFound = errors.New("request not found")

// ErrAlreadyTerminal is returned when cancelling or expiring a request that
// already reached a terminal state.
var ErrAlreadyTerminal = errors.New("request already terminal")

// ErrNotPending is returned when an assignment races with a cancellation or
// expiry: the request left the pending state before the match completed.
var ErrNotPending = errors.New("request no longer pending")

// ErrRiderBusy is returned when a rider already has a non-terminal request.
var ErrRiderBusy = errors.New("rider already has an active request")

// ErrAssigned is returned by Cancel when the request is already matched;
// cancellation must go through the ride instead.
var ErrAssigned = errors.New("request already assigned to a ride")
