package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/musable/musable/models"
)

// DeviceInfo is what a client sends when registering itself.
type DeviceInfo struct {
	DeviceID string `json:"deviceId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Browser  string `json:"browser"`
	OS       string `json:"os"`
}

// SessionRepository owns device registrations and the one playback-session
// row per user.
type SessionRepository struct {
	db         *gorm.DB
	maxDevices int
}

func NewSessionRepository(db *gorm.DB, maxDevices int) *SessionRepository {
	return &SessionRepository{db: db, maxDevices: maxDevices}
}

// RegisterDevice upserts a device. A new identifier is rejected once the user
// owns the maximum number of devices; identifiers are unique across users.
func (r *SessionRepository) RegisterDevice(userID uint, info DeviceInfo) (*models.Device, error) {
	now := time.Now()

	var device models.Device
	err := r.db.Where("device_id = ?", info.DeviceID).First(&device).Error
	if err == nil {
		if device.UserID != userID {
			return nil, ErrDeviceNotOwned
		}
		device.Name = info.Name
		device.Type = info.Type
		device.Browser = info.Browser
		device.OS = info.OS
		device.LastActiveAt = now
		if err := r.db.Save(&device).Error; err != nil {
			return nil, err
		}
		return &device, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var count int64
	if err := r.db.Model(&models.Device{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count >= int64(r.maxDevices) {
		return nil, ErrDeviceLimit
	}

	device = models.Device{
		UserID:       userID,
		DeviceID:     info.DeviceID,
		Name:         info.Name,
		Type:         info.Type,
		Browser:      info.Browser,
		OS:           info.OS,
		LastActiveAt: now,
	}
	if err := r.db.Create(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// TouchDevice updates the last-active timestamp for a heartbeat.
func (r *SessionRepository) TouchDevice(deviceID string) error {
	result := r.db.Model(&models.Device{}).
		Where("device_id = ?", deviceID).
		Update("last_active_at", time.Now())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SessionRepository) ListDevices(userID uint) ([]models.Device, error) {
	var devices []models.Device
	err := r.db.Where("user_id = ?", userID).Order("last_active_at desc").Find(&devices).Error
	return devices, err
}

// OwnsDevice reports whether the device identifier is registered to the user.
func (r *SessionRepository) OwnsDevice(userID uint, deviceID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Device{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Count(&count).Error
	return count > 0, err
}

// DeleteDevice removes a device the user owns, clearing the session's active
// pointer if it referenced it.
func (r *SessionRepository) DeleteDevice(userID uint, deviceID string) error {
	result := r.db.Where("user_id = ? AND device_id = ?", userID, deviceID).Delete(&models.Device{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}

	session, err := r.GetSession(userID)
	if err != nil {
		return err
	}
	if session.ActiveDeviceID != nil && *session.ActiveDeviceID == deviceID {
		return r.ClearActiveDevice(userID)
	}
	return nil
}

// GetSession returns the user's playback session, creating it lazily.
func (r *SessionRepository) GetSession(userID uint) (*models.PlaybackSession, error) {
	var session models.PlaybackSession
	err := r.db.Where("user_id = ?", userID).First(&session).Error
	if err == nil {
		return &session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	session = models.PlaybackSession{
		UserID:     userID,
		Volume:     1.0,
		Queue:      models.SongIDList{},
		RepeatMode: models.RepeatNone,
	}
	if err := r.db.Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) SaveSession(session *models.PlaybackSession) error {
	return r.db.Save(session).Error
}

// SetActiveDevice records the device authorized to render audio for the user.
func (r *SessionRepository) SetActiveDevice(userID uint, deviceID string) (*models.PlaybackSession, error) {
	session, err := r.GetSession(userID)
	if err != nil {
		return nil, err
	}
	session.ActiveDeviceID = &deviceID
	if err := r.db.Save(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// ClearActiveDevice removes the active pointer; with no device to render,
// playing is forced false.
func (r *SessionRepository) ClearActiveDevice(userID uint) error {
	return r.db.Model(&models.PlaybackSession{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"active_device_id": nil, "is_playing": false}).Error
}

// SweepInactiveDevices deletes devices idle longer than age and returns what
// it removed so callers can notify affected users.
func (r *SessionRepository) SweepInactiveDevices(age time.Duration) ([]models.Device, error) {
	cutoff := time.Now().Add(-age)

	var stale []models.Device
	if err := r.db.Where("last_active_at < ?", cutoff).Find(&stale).Error; err != nil {
		return nil, err
	}
	if len(stale) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(stale))
	for _, d := range stale {
		ids = append(ids, d.ID)
	}
	if err := r.db.Delete(&models.Device{}, ids).Error; err != nil {
		return nil, err
	}

	// A swept device may have been someone's active player.
	for _, d := range stale {
		var session models.PlaybackSession
		err := r.db.Where("user_id = ?", d.UserID).First(&session).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		if session.ActiveDeviceID != nil && *session.ActiveDeviceID == d.DeviceID {
			if err := r.ClearActiveDevice(d.UserID); err != nil {
				return nil, err
			}
		}
	}

	return stale, nil
}
