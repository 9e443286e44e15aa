package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Subscribers are notified when a machine they follow finishes its cycle.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	Machines []SubscribedMachine `gorm:"foreignKey:Endpoint;constraint:OnDelete:CASCADE"`
}

// SubscribedMachine maps a push subscription to a machine number.
type SubscribedMachine struct {
	Endpoint      string `gorm:"primaryKey;size:512"`
	MachineNumber int    `gorm:"primaryKey"`
}
