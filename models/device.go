package models

import (
	"time"
)

// Device is one client endpoint a user can play audio on. The identifier is
// chosen by the client and is unique across all users.
type Device struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	DeviceID     string    `gorm:"size:255;not null;unique" json:"device_id"`
	Name         string    `gorm:"size:255" json:"name"`
	Type         string    `gorm:"size:50" json:"type"`
	Browser      string    `gorm:"size:255" json:"browser"`
	OS           string    `gorm:"size:255" json:"os"`
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
