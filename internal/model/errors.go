package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the reservation domain. All of these are expected,
// recoverable outcomes of a create/cancel/transition call; infrastructure
// faults propagate as ordinary wrapped errors instead.
var (
	ErrNotFound            = errors.New("resource or reservation not found")
	ErrResourceUnavailable = errors.New("resource is not bookable")
	ErrInvalidInterval     = errors.New("start time must be strictly before end time")
	ErrNotHolder           = errors.New("reservation is held by another user")
)

// DurationExceededError reports a requested interval longer than the
// resource kind's cap.
type DurationExceededError struct {
	Kind      ResourceKind
	Max       time.Duration
	Requested time.Duration
}

func (e *DurationExceededError) Error() string {
	return fmt.Sprintf("requested duration %s exceeds the %s cap of %s", e.Requested, e.Kind, e.Max)
}

// ConcurrentReservationError reports a violation of the single-active
// reservation policy for lab stations.
type ConcurrentReservationError struct {
	ExistingID string
}

func (e *ConcurrentReservationError) Error() string {
	return fmt.Sprintf("holder already has an active reservation %s", e.ExistingID)
}

// ConflictError reports an overlapping active reservation on the requested
// resource. It carries enough detail for the caller to show the conflicting
// window.
type ConflictError struct {
	ConflictingID string
	ConflictStart time.Time
	ConflictEnd   time.Time
}

func (e *ConflictError) Error() string {
	if e.ConflictingID == "" {
		return "interval overlaps an existing reservation"
	}
	return fmt.Sprintf("interval overlaps reservation %s [%s, %s)",
		e.ConflictingID,
		e.ConflictStart.Format(time.RFC3339),
		e.ConflictEnd.Format(time.RFC3339))
}

// InvalidTransitionError reports an attempted status change that violates
// the reservation state machine.
type InvalidTransitionError struct {
	ReservationID string
	From          ReservationStatus
	To            ReservationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("reservation %s cannot transition from %s to %s", e.ReservationID, e.From, e.To)
}
