// Package conflict implements the interval-overlap check for reservations.
// Intervals are half-open [start, end): touching intervals do not overlap.
package conflict

import (
	"time"

	"campus-reservation-backend/internal/model"
)

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// FindConflict returns the first active reservation whose interval overlaps
// [start, end), or nil. Reservations in a terminal status never conflict.
// The result is defined purely by the overlap predicate, so any indexed
// implementation must agree with a linear scan.
func FindConflict(start, end time.Time, existing []model.Reservation) *model.Reservation {
	for i := range existing {
		r := &existing[i]
		if r.Status != model.ReservationActive {
			continue
		}
		if Overlaps(start, end, r.StartTime, r.EndTime) {
			return r
		}
	}
	return nil
}
