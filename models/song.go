package models

import (
	"time"
)

// Song is the catalog entry the sync engines reference. The scanning and
// tagging pipeline that fills this table lives outside this service.
type Song struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Artist    string    `gorm:"size:255" json:"artist"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
