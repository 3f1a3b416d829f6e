package models

import (
	"time"
)

// Participant roles
const (
	RoleHost     = "host"
	RoleListener = "listener"
)

type Room struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Code        string `gorm:"size:6;not null;unique" json:"code"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	HostID      uint   `json:"host_id"`
	IsPublic    bool   `gorm:"default:true" json:"is_public"`
	MaxUsers    int    `gorm:"default:10" json:"max_users"`

	// Durable playback triple plus the instant playback last resumed.
	CurrentSongID uint      `json:"current_song_id"`
	Position      float64   `json:"position"`
	IsPlaying     bool      `json:"is_playing"`
	LastPlayedAt  time.Time `json:"last_played_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RoomParticipant struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	RoomID   uint      `gorm:"index:idx_room_user,unique" json:"room_id"`
	UserID   uint      `gorm:"index:idx_room_user,unique" json:"user_id"`
	User     User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role     string    `gorm:"size:20;default:'listener'" json:"role"`
	IsActive bool      `gorm:"default:true" json:"is_active"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
}

// RoomQueueItem positions form a dense 1..N sequence per room, maintained by
// shifting on insert and delete.
type RoomQueueItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    uint      `gorm:"index" json:"room_id"`
	SongID    uint      `json:"song_id"`
	Song      Song      `gorm:"foreignKey:SongID" json:"song,omitempty"`
	AddedBy   uint      `json:"added_by"`
	Position  int       `gorm:"not null" json:"position"`
	CreatedAt time.Time `json:"created_at"`
}
