package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/musable/musable/models"
	"github.com/musable/musable/utils"
)

// RoomRepository owns the room, participant and queue tables. It carries no
// business rules beyond the row-level invariants (unique code, dense queue
// positions).
type RoomRepository struct {
	db         *gorm.DB
	codeLength int
}

func NewRoomRepository(db *gorm.DB, codeLength int) *RoomRepository {
	return &RoomRepository{db: db, codeLength: codeLength}
}

// CreateRoom creates a room with a collision-checked join code and the
// creator as host participant.
func (r *RoomRepository) CreateRoom(name, description string, hostID uint, isPublic bool, maxUsers int) (*models.Room, error) {
	if maxUsers < 2 {
		maxUsers = 2
	}

	code, err := r.generateCode()
	if err != nil {
		return nil, err
	}

	room := models.Room{
		Code:        code,
		Name:        name,
		Description: description,
		HostID:      hostID,
		IsPublic:    isPublic,
		MaxUsers:    maxUsers,
	}
	if err := r.db.Create(&room).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	participant := models.RoomParticipant{
		RoomID:   room.ID,
		UserID:   hostID,
		Role:     models.RoleHost,
		IsActive: true,
		JoinedAt: now,
		LastSeen: now,
	}
	if err := r.db.Create(&participant).Error; err != nil {
		return nil, err
	}

	return &room, nil
}

// generateCode retries until it finds a code no existing room uses.
func (r *RoomRepository) generateCode() (string, error) {
	for {
		code, err := utils.GenerateRoomCode(r.codeLength)
		if err != nil {
			return "", err
		}
		var count int64
		if err := r.db.Model(&models.Room{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
}

func (r *RoomRepository) FindByCode(code string) (*models.Room, error) {
	var room models.Room
	if err := r.db.Where("code = ?", code).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (r *RoomRepository) FindByID(id uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.First(&room, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func (r *RoomRepository) ListPublicRooms() ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.Where("is_public = ?", true).Order("created_at desc").Find(&rooms).Error
	return rooms, err
}

func (r *RoomRepository) RoomsForUser(userID uint) ([]models.Room, error) {
	var participants []models.RoomParticipant
	if err := r.db.Where("user_id = ? AND is_active = ?", userID, true).Find(&participants).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.RoomID)
	}
	var rooms []models.Room
	if len(ids) == 0 {
		return rooms, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&rooms).Error
	return rooms, err
}

// ActiveParticipants returns the active participants ordered by join time.
func (r *RoomRepository) ActiveParticipants(roomID uint) ([]models.RoomParticipant, error) {
	var participants []models.RoomParticipant
	err := r.db.Preload("User").
		Where("room_id = ? AND is_active = ?", roomID, true).
		Order("joined_at asc").
		Find(&participants).Error
	return participants, err
}

func (r *RoomRepository) CountActiveParticipants(roomID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Count(&count).Error
	return count, err
}

// UpsertParticipant reactivates an existing row on rejoin or creates a new
// one, so a user has at most one row per room.
func (r *RoomRepository) UpsertParticipant(roomID, userID uint, role string) (*models.RoomParticipant, error) {
	now := time.Now()

	var participant models.RoomParticipant
	err := r.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&participant).Error
	if err == nil {
		participant.Role = role
		participant.IsActive = true
		participant.LastSeen = now
		if err := r.db.Save(&participant).Error; err != nil {
			return nil, err
		}
		return &participant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	participant = models.RoomParticipant{
		RoomID:   roomID,
		UserID:   userID,
		Role:     role,
		IsActive: true,
		JoinedAt: now,
		LastSeen: now,
	}
	if err := r.db.Create(&participant).Error; err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *RoomRepository) DeactivateParticipant(roomID, userID uint) error {
	return r.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Updates(map[string]interface{}{"is_active": false, "last_seen": time.Now()}).Error
}

// IsKnownParticipant reports whether the user has a participant row, active
// or not; rejoining users bypass the capacity check.
func (r *RoomRepository) IsKnownParticipant(roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *RoomRepository) IsActiveParticipant(roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND user_id = ? AND is_active = ?", roomID, userID, true).
		Count(&count).Error
	return count > 0, err
}

// TransferHost moves transport authority to another participant. The old host
// row (if any) is demoted so at most one active host row exists per room.
func (r *RoomRepository) TransferHost(roomID, toUserID uint) error {
	if err := r.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND role = ?", roomID, models.RoleHost).
		Update("role", models.RoleListener).Error; err != nil {
		return err
	}
	if err := r.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND user_id = ?", roomID, toUserID).
		Update("role", models.RoleHost).Error; err != nil {
		return err
	}
	return r.db.Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("host_id", toUserID).Error
}

// DeleteRoom removes the room and everything hanging off of it. Rooms are
// hard-deleted once empty.
func (r *RoomRepository) DeleteRoom(roomID uint) error {
	if err := r.db.Where("room_id = ?", roomID).Delete(&models.RoomQueueItem{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("room_id = ?", roomID).Delete(&models.RoomParticipant{}).Error; err != nil {
		return err
	}
	if err := r.db.Where("room_id = ?", roomID).Delete(&models.RoomInvite{}).Error; err != nil {
		return err
	}
	return r.db.Delete(&models.Room{}, roomID).Error
}

// PersistPlayback writes the durable playback triple for a room.
func (r *RoomRepository) PersistPlayback(roomID, songID uint, position float64, isPlaying bool, lastPlayedAt time.Time) error {
	return r.db.Model(&models.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]interface{}{
			"current_song_id": songID,
			"position":        position,
			"is_playing":      isPlaying,
			"last_played_at":  lastPlayedAt,
		}).Error
}

// GetQueue returns the room queue in play order with songs hydrated.
func (r *RoomRepository) GetQueue(roomID uint) ([]models.RoomQueueItem, error) {
	var items []models.RoomQueueItem
	err := r.db.Preload("Song").
		Where("room_id = ?", roomID).
		Order("position asc").
		Find(&items).Error
	return items, err
}

// AddToQueue appends a song at the next free position.
func (r *RoomRepository) AddToQueue(roomID, songID, userID uint) (*models.RoomQueueItem, error) {
	var maxPos int
	row := r.db.Model(&models.RoomQueueItem{}).
		Where("room_id = ?", roomID).
		Select("COALESCE(MAX(position), 0)").
		Row()
	if err := row.Scan(&maxPos); err != nil {
		return nil, err
	}

	item := models.RoomQueueItem{
		RoomID:   roomID,
		SongID:   songID,
		AddedBy:  userID,
		Position: maxPos + 1,
	}
	if err := r.db.Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// AddToQueueTop shifts every existing item down by one and inserts the song
// at position 1, inside a single transaction so the queue is never left with
// duplicate or skipped positions.
func (r *RoomRepository) AddToQueueTop(roomID, songID, userID uint) (*models.RoomQueueItem, error) {
	var item models.RoomQueueItem
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RoomQueueItem{}).
			Where("room_id = ?", roomID).
			Update("position", gorm.Expr("position + 1")).Error; err != nil {
			return err
		}
		item = models.RoomQueueItem{
			RoomID:   roomID,
			SongID:   songID,
			AddedBy:  userID,
			Position: 1,
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindQueueItem loads one queue row so callers can check permissions before
// removing it.
func (r *RoomRepository) FindQueueItem(itemID uint) (*models.RoomQueueItem, error) {
	var item models.RoomQueueItem
	if err := r.db.First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// HasAcceptedInvite reports whether the user was invited into the room and
// accepted.
func (r *RoomRepository) HasAcceptedInvite(roomID, userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.RoomInvite{}).
		Where("room_id = ? AND receiver_id = ? AND status = ?", roomID, userID, models.InviteAccepted).
		Count(&count).Error
	return count > 0, err
}

// RemoveFromQueue deletes the item and compacts the positions after it.
func (r *RoomRepository) RemoveFromQueue(itemID uint) (*models.RoomQueueItem, error) {
	var item models.RoomQueueItem
	if err := r.db.First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueItemNotFound
		}
		return nil, err
	}

	if err := r.db.Delete(&item).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.RoomQueueItem{}).
		Where("room_id = ? AND position > ?", item.RoomID, item.Position).
		Update("position", gorm.Expr("position - 1")).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindSong hydrates a song for queue and sync payloads.
func (r *RoomRepository) FindSong(id uint) (*models.Song, error) {
	var song models.Song
	if err := r.db.First(&song, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSongNotFound
		}
		return nil, err
	}
	return &song, nil
}

// FindUser looks up a user for chat and participant display.
func (r *RoomRepository) FindUser(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
