package websocket

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/musable/musable/models"
	"github.com/musable/musable/repository"
)

// Remote commands relayed to the active device
const (
	CommandPlay     = "play"
	CommandPause    = "pause"
	CommandNext     = "next"
	CommandPrevious = "previous"
	CommandSeek     = "seek"
)

// DeviceEngine owns per-user cross-device state: registration, heartbeats,
// playback-state pushes, active-device handoff, and remote-command relay.
type DeviceEngine struct {
	sessions *repository.SessionRepository
	hub      *Hub
}

func NewDeviceEngine(sessions *repository.SessionRepository, hub *Hub) *DeviceEngine {
	return &DeviceEngine{sessions: sessions, hub: hub}
}

type HeartbeatPayload struct {
	DeviceID string `json:"deviceId"`
}

// PlaybackUpdatePayload is a partial state push; nil fields are left alone.
type PlaybackUpdatePayload struct {
	CurrentSongID *uint              `json:"currentSongId"`
	Position      *float64           `json:"position"`
	IsPlaying     *bool              `json:"isPlaying"`
	Volume        *float64           `json:"volume"`
	Queue         *models.SongIDList `json:"queue"`
	CurrentIndex  *int               `json:"currentIndex"`
	Shuffle       *bool              `json:"shuffle"`
	RepeatMode    *string            `json:"repeatMode"`
}

type HandoffPayload struct {
	ToDeviceID string `json:"toDeviceId"`
}

type RemoteCommandPayload struct {
	Command string   `json:"command"`
	Value   *float64 `json:"value"`
}

// HandleRegister upserts the device, binds this connection to it, and replies
// with the device record plus the session snapshot.
func (e *DeviceEngine) HandleRegister(c *Client, info repository.DeviceInfo) {
	if info.DeviceID == "" {
		sendErrorToClient(c, EventError, "deviceId is required")
		return
	}

	device, err := e.sessions.RegisterDevice(c.userID, info)
	if err != nil {
		switch err {
		case repository.ErrDeviceLimit:
			sendErrorToClient(c, EventError, "Device limit reached")
		case repository.ErrDeviceNotOwned:
			sendErrorToClient(c, EventError, "Device identifier is already in use")
		default:
			logrus.WithError(err).Error("failed to register device")
			sendErrorToClient(c, EventError, "Failed to register device")
		}
		return
	}

	c.setDeviceID(device.DeviceID)

	session, err := e.sessions.GetSession(c.userID)
	if err != nil {
		logrus.WithError(err).Error("failed to load session")
		sendErrorToClient(c, EventError, "Failed to load playback session")
		return
	}

	sendToClient(c, EventDeviceRegistered, map[string]interface{}{"device": device})
	sendToClient(c, EventPlaybackSync, snapshotFromSession(session))
	e.broadcastDevices(c.userID)

	logrus.WithFields(logrus.Fields{
		"user_id":   c.userID,
		"device_id": device.DeviceID,
	}).Info("device registered")
}

// HandleHeartbeat touches the device's last-active timestamp; no broadcast.
func (e *DeviceEngine) HandleHeartbeat(c *Client, payload HeartbeatPayload) {
	deviceID := payload.DeviceID
	if deviceID == "" {
		deviceID = c.DeviceID()
	}
	if deviceID == "" {
		return
	}
	if err := e.sessions.TouchDevice(deviceID); err != nil {
		logrus.WithError(err).WithField("device_id", deviceID).Debug("heartbeat for unknown device")
	}
}

// HandlePlaybackUpdate merges a partial state push into the session. A device
// that reports itself playing takes active-device authority first.
func (e *DeviceEngine) HandlePlaybackUpdate(c *Client, payload PlaybackUpdatePayload) {
	deviceID := c.DeviceID()
	if deviceID == "" {
		sendErrorToClient(c, EventError, "Register a device first")
		return
	}

	session, err := e.sessions.GetSession(c.userID)
	if err != nil {
		logrus.WithError(err).Error("failed to load session")
		sendErrorToClient(c, EventError, "Failed to load playback session")
		return
	}

	if payload.IsPlaying != nil && *payload.IsPlaying {
		if session.ActiveDeviceID == nil || *session.ActiveDeviceID != deviceID {
			session = e.transferActive(c.userID, session, deviceID)
			if session == nil {
				sendErrorToClient(c, EventError, "Failed to update playback state")
				return
			}
		}
	}

	if payload.CurrentSongID != nil {
		session.CurrentSongID = *payload.CurrentSongID
	}
	if payload.Position != nil {
		session.Position = *payload.Position
	}
	if payload.IsPlaying != nil {
		session.IsPlaying = *payload.IsPlaying
	}
	if payload.Volume != nil {
		session.Volume = *payload.Volume
	}
	if payload.Queue != nil {
		session.Queue = *payload.Queue
	}
	if payload.CurrentIndex != nil {
		session.CurrentIndex = *payload.CurrentIndex
	}
	if payload.Shuffle != nil {
		session.Shuffle = *payload.Shuffle
	}
	if payload.RepeatMode != nil {
		session.RepeatMode = *payload.RepeatMode
	}

	if err := e.sessions.SaveSession(session); err != nil {
		logrus.WithError(err).Error("failed to save session")
		sendErrorToClient(c, EventError, "Failed to update playback state")
		return
	}

	e.hub.BroadcastToUser(c.userID, EventPlaybackSync, snapshotFromSession(session))
}

// SetActiveDevice moves render authority to the given device, notifying the
// prior holder and the new one, then broadcasting the general snapshot.
func (e *DeviceEngine) SetActiveDevice(c *Client, deviceID string) {
	owns, err := e.sessions.OwnsDevice(c.userID, deviceID)
	if err != nil {
		logrus.WithError(err).Error("failed to check device ownership")
		sendErrorToClient(c, EventError, "Failed to set active device")
		return
	}
	if !owns {
		sendErrorToClient(c, EventError, "Device not found")
		return
	}

	session, err := e.sessions.GetSession(c.userID)
	if err != nil {
		logrus.WithError(err).Error("failed to load session")
		sendErrorToClient(c, EventError, "Failed to set active device")
		return
	}

	if session.ActiveDeviceID != nil && *session.ActiveDeviceID == deviceID {
		e.hub.BroadcastToUser(c.userID, EventPlaybackSync, snapshotFromSession(session))
		return
	}

	if e.transferActive(c.userID, session, deviceID) == nil {
		sendErrorToClient(c, EventError, "Failed to set active device")
	}
}

// transferActive records the new active device and emits the targeted
// lost/became events. Returns the updated session, nil on failure.
func (e *DeviceEngine) transferActive(userID uint, session *models.PlaybackSession, toDeviceID string) *models.PlaybackSession {
	var prev string
	if session.ActiveDeviceID != nil {
		prev = *session.ActiveDeviceID
	}

	updated, err := e.sessions.SetActiveDevice(userID, toDeviceID)
	if err != nil {
		logrus.WithError(err).Error("failed to set active device")
		return nil
	}

	auditAuthorityTransfer("active_device", userID, prev, toDeviceID)

	snapshot := snapshotFromSession(updated)
	if prev != "" {
		e.hub.SendToDevice(userID, prev, EventLostActivePlayer, map[string]interface{}{"deviceId": prev})
	}
	e.hub.SendToDevice(userID, toDeviceID, EventBecameActivePlayer, map[string]interface{}{
		"deviceId": toDeviceID,
		"payload":  snapshot,
	})
	e.hub.BroadcastToUser(userID, EventPlaybackSync, snapshot)
	return updated
}

// HandleHandoff transfers playback from this connection's device to another
// device of the same user.
func (e *DeviceEngine) HandleHandoff(c *Client, payload HandoffPayload) {
	fromDeviceID := c.DeviceID()
	if fromDeviceID == "" {
		sendErrorToClient(c, EventError, "Register a device first")
		return
	}

	session, err := e.sessions.GetSession(c.userID)
	if err != nil {
		logrus.WithError(err).Error("failed to load session")
		sendErrorToClient(c, EventError, "Failed to hand off playback")
		return
	}
	if session.ActiveDeviceID == nil || *session.ActiveDeviceID != fromDeviceID {
		sendErrorToClient(c, EventError, "Only the active device can hand off playback")
		return
	}

	owns, err := e.sessions.OwnsDevice(c.userID, payload.ToDeviceID)
	if err != nil || !owns {
		sendErrorToClient(c, EventError, "Target device not found")
		return
	}

	updated := e.transferActive(c.userID, session, payload.ToDeviceID)
	if updated == nil {
		sendErrorToClient(c, EventError, "Failed to hand off playback")
		return
	}

	e.hub.SendToDevice(c.userID, payload.ToDeviceID, EventHandoff, map[string]interface{}{
		"deviceId": payload.ToDeviceID,
		"payload":  snapshotFromSession(updated),
	})
}

// HandleRemoteCommand relays a transport command to the active device only,
// opportunistically folding play/pause/seek into the session row so late
// observers see a consistent snapshot.
func (e *DeviceEngine) HandleRemoteCommand(c *Client, payload RemoteCommandPayload) {
	session, err := e.sessions.GetSession(c.userID)
	if err != nil {
		logrus.WithError(err).Error("failed to load session")
		sendErrorToClient(c, EventError, "Failed to send command")
		return
	}
	if session.ActiveDeviceID == nil {
		sendErrorToClient(c, EventError, "No active device")
		return
	}

	switch payload.Command {
	case CommandPlay:
		session.IsPlaying = true
	case CommandPause:
		session.IsPlaying = false
	case CommandSeek:
		if payload.Value != nil {
			session.Position = *payload.Value
		}
	case CommandNext, CommandPrevious:
		// The active device resolves the queue move and pushes the result
		// back via playback:update.
	default:
		sendErrorToClient(c, EventError, "Unknown command")
		return
	}

	if err := e.sessions.SaveSession(session); err != nil {
		logrus.WithError(err).Error("failed to save session")
	}

	e.hub.SendToDevice(c.userID, *session.ActiveDeviceID, EventRemoteCommandOut, map[string]interface{}{
		"deviceId": *session.ActiveDeviceID,
		"payload": map[string]interface{}{
			"command": payload.Command,
			"value":   payload.Value,
		},
	})
}

// HandleDisconnect clears the active device if the closing socket held it,
// forcing playing off and rebroadcasting the snapshot.
func (e *DeviceEngine) HandleDisconnect(c *Client) {
	deviceID := c.DeviceID()
	if deviceID == "" {
		return
	}

	session, err := e.sessions.GetSession(c.userID)
	if err != nil {
		logrus.WithError(err).Error("failed to load session on disconnect")
		return
	}
	if session.ActiveDeviceID == nil || *session.ActiveDeviceID != deviceID {
		return
	}

	if err := e.sessions.ClearActiveDevice(c.userID); err != nil {
		logrus.WithError(err).Error("failed to clear active device")
		return
	}
	auditAuthorityTransfer("active_device", c.userID, deviceID, "")

	session, err = e.sessions.GetSession(c.userID)
	if err != nil {
		return
	}
	e.hub.BroadcastToUser(c.userID, EventPlaybackSync, snapshotFromSession(session))
}

// RunDeviceSweep periodically removes devices inactive longer than the
// configured age.
func (e *DeviceEngine) RunDeviceSweep(period, age time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := e.sessions.SweepInactiveDevices(age)
			if err != nil {
				logrus.WithError(err).Error("device sweep failed")
				continue
			}
			users := make(map[uint]bool)
			for _, d := range removed {
				users[d.UserID] = true
			}
			for userID := range users {
				e.broadcastDevices(userID)
			}
			if len(removed) > 0 {
				logrus.WithField("count", len(removed)).Info("swept inactive devices")
			}
		case <-stop:
			return
		}
	}
}

func (e *DeviceEngine) broadcastDevices(userID uint) {
	devices, err := e.sessions.ListDevices(userID)
	if err != nil {
		logrus.WithError(err).Error("failed to list devices")
		return
	}
	e.hub.BroadcastToUser(userID, EventDevicesUpdated, map[string]interface{}{"devices": devices})
}
