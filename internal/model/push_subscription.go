package model

import "time"

// PushSubscription holds a holder's browser push subscription. A holder
// may be subscribed from several browsers at once.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	HolderID  string    `gorm:"size:128;index;not null"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
