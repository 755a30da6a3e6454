package model

import "time"

// ResourceKind distinguishes the two bookable resource families.
type ResourceKind string

const (
	KindRoom       ResourceKind = "room"
	KindLabStation ResourceKind = "lab_station"
)

// OperationalStatus is the derived current state of a resource. It is
// computed from the active reservation set plus the availability flags
// and is never persisted.
type OperationalStatus string

const (
	StatusAvailable    OperationalStatus = "available"
	StatusReserved     OperationalStatus = "reserved"
	StatusOccupied     OperationalStatus = "occupied"
	StatusOutOfService OperationalStatus = "out_of_service"
)

// Resource represents a bookable entity: a room or an individual lab station.
type Resource struct {
	ID          int64        `gorm:"primaryKey" json:"id"`
	Kind        ResourceKind `gorm:"size:32;index;not null" json:"kind"`
	Name        string       `gorm:"size:256;not null" json:"name"`
	Capacity    int          `json:"capacity"`
	Equipment   string       `gorm:"size:512" json:"equipment,omitempty"`
	IsActive    bool         `gorm:"not null;default:true" json:"isActive"`
	IsAvailable bool         `gorm:"not null;default:true" json:"isAvailable"`
	// ParentLabID links a lab station to its containing lab room.
	ParentLabID *int64    `gorm:"index" json:"parentLabId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Bookable reports whether new reservations may be created on the resource.
// Deactivated resources keep their reservation history but reject new ones.
func (r *Resource) Bookable() bool {
	return r.IsActive && r.IsAvailable
}

// CurrentStatus derives the operational status from the resource flags and
// the reservation, if any, covering or pending at the given instant.
func (r *Resource) CurrentStatus(current *Reservation, now time.Time) OperationalStatus {
	if !r.Bookable() {
		return StatusOutOfService
	}
	if current == nil {
		return StatusAvailable
	}
	if current.Covers(now) {
		return StatusOccupied
	}
	return StatusReserved
}
