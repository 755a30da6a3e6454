package model

import "time"

// ReservationStatus is the persisted lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
	ReservationExpired   ReservationStatus = "expired"
)

// Terminal reports whether a status admits no further transitions.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationCancelled, ReservationCompleted, ReservationExpired:
		return true
	}
	return false
}

// ElapsedStatus returns the terminal status a reservation of the given
// resource kind reaches once its end time passes: room bookings elapse to
// completed, lab-station reservations that ran out without a check-out are
// expired. Both are treated identically by conflict and availability logic.
func ElapsedStatus(kind ResourceKind) ReservationStatus {
	if kind == KindLabStation {
		return ReservationExpired
	}
	return ReservationCompleted
}

// Reservation allocates one resource to one holder over the half-open
// interval [StartTime, EndTime). Times are stored UTC-normalized.
type Reservation struct {
	ID         string            `gorm:"type:uuid;primaryKey" json:"id"`
	ResourceID int64             `gorm:"index;not null" json:"resourceId"`
	HolderID   string            `gorm:"size:128;index;not null" json:"holderId"`
	StartTime  time.Time         `gorm:"index;not null" json:"startTime"`
	EndTime    time.Time         `gorm:"index;not null" json:"endTime"`
	Status     ReservationStatus `gorm:"size:16;index;not null" json:"status"`
	Purpose    string            `gorm:"size:256" json:"purpose,omitempty"`
	Notes      string            `gorm:"size:512" json:"notes,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`

	// Associations
	Resource Resource `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Covers reports whether the instant falls inside [StartTime, EndTime).
func (r *Reservation) Covers(t time.Time) bool {
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}

// Elapsed reports whether the reservation's interval has fully passed.
func (r *Reservation) Elapsed(now time.Time) bool {
	return !now.Before(r.EndTime)
}

// Duration returns the length of the reserved interval.
func (r *Reservation) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
