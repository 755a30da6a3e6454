package model

import "time"

// ExpiryAlert marks that a holder has been warned about a reservation
// approaching its end time. At most one alert exists per reservation,
// which is what makes the warning one-shot.
type ExpiryAlert struct {
	ReservationID string    `gorm:"type:uuid;primaryKey" json:"reservationId"`
	HolderID      string    `gorm:"size:128;index;not null" json:"holderId"`
	EndTime       time.Time `gorm:"not null" json:"endTime"`
	CreatedAt     time.Time `gorm:"not null" json:"createdAt"`
}
