package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Repeat modes
const (
	RepeatNone = "none"
	RepeatOne  = "one"
	RepeatAll  = "all"
)

// SongIDList stores the session queue as a JSON array of song ids.
type SongIDList []uint

func (l SongIDList) Value() (driver.Value, error) {
	if l == nil {
		l = SongIDList{}
	}
	return json.Marshal(l)
}

func (l *SongIDList) Scan(value interface{}) error {
	if value == nil {
		*l = SongIDList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("unsupported type for SongIDList")
	}
}

// PlaybackSession is the single durable playback row per user. Created lazily
// on first device activity, never deleted.
type PlaybackSession struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"not null;unique" json:"user_id"`
	ActiveDeviceID *string    `gorm:"size:255" json:"active_device_id"`
	CurrentSongID  uint       `json:"current_song_id"`
	Position       float64    `json:"position"`
	IsPlaying      bool       `json:"is_playing"`
	Volume         float64    `gorm:"default:1.0" json:"volume"`
	Queue          SongIDList `gorm:"type:text" json:"queue"`
	CurrentIndex   int        `json:"current_index"`
	Shuffle        bool       `json:"shuffle"`
	RepeatMode     string     `gorm:"size:10;default:'none'" json:"repeat_mode"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CreatedAt      time.Time  `json:"created_at"`
}
