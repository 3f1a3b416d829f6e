package websocket

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/musable/musable/models"
)

// Inbound event types
const (
	EventJoinRoom        = "join_room"
	EventLeaveRoom       = "leave_room"
	EventRoomPlay        = "room_play"
	EventRoomPause       = "room_pause"
	EventRoomSeek        = "room_seek"
	EventRoomSongChange  = "room_song_change"
	EventAddToQueue      = "add_to_queue"
	EventAddToQueueTop   = "add_to_queue_top"
	EventRemoveFromQueue = "remove_from_queue"
	EventRoomChat        = "room_chat"
	EventRequestSync     = "request_sync"

	EventDeviceRegister  = "device:register"
	EventDeviceHeartbeat = "device:heartbeat"
	EventDeviceSetActive = "device:set_active"
	EventPlaybackUpdate  = "playback:update"
	EventPlaybackHandoff = "playback:handoff"
	EventRemoteCommand   = "playback:remote_command"
)

// Outbound event types
const (
	EventRoomJoined          = "room_joined"
	EventRoomError           = "room_error"
	EventParticipantsUpdated = "participants_updated"
	EventUserJoined          = "user_joined"
	EventUserLeft            = "user_left"
	EventQueueUpdated        = "queue_updated"
	EventPlaybackSync        = "playback_sync"
	EventChatMessage         = "chat_message"

	EventDeviceRegistered   = "device:registered"
	EventDevicesUpdated     = "devices_updated"
	EventLostActivePlayer   = "lost_active_player"
	EventBecameActivePlayer = "became_active_player"
	EventHandoff            = "playback_handoff"
	EventRemoteCommandOut   = "remote_command"
	EventError              = "error"
)

// Message is the wire envelope for both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// encodeMessage builds the wire form of an outbound event.
func encodeMessage(msgType string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}

// sendToClient queues an event on one connection, dropping it if the client
// cannot keep up.
func sendToClient(c *Client, msgType string, payload interface{}) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		logrus.WithError(err).WithField("type", msgType).Error("failed to encode message")
		return
	}
	select {
	case c.send <- data:
	default:
		logrus.WithField("user_id", c.userID).Warn("dropping message for slow client")
	}
}

// sendErrorToClient reports a failure to the caller only.
func sendErrorToClient(c *Client, msgType, message string) {
	sendToClient(c, msgType, map[string]string{"message": message})
}

// PlaybackSyncEvent is the room-channel transport event emitted after an
// accepted playback control.
type PlaybackSyncEvent struct {
	Type      string    `json:"type"`
	SongID    uint      `json:"song_id"`
	Position  float64   `json:"position"`
	Timestamp time.Time `json:"timestamp"`
	UserID    uint      `json:"user_id"`
}

// SessionSnapshot is the user-channel session state broadcast by the device
// sync engine.
type SessionSnapshot struct {
	ActiveDeviceID  *string           `json:"activeDeviceId"`
	CurrentSongID   uint              `json:"currentSongId"`
	CurrentPosition float64           `json:"currentPosition"`
	IsPlaying       bool              `json:"isPlaying"`
	Volume          float64           `json:"volume"`
	Queue           models.SongIDList `json:"queue"`
	CurrentIndex    int               `json:"currentIndex"`
	Shuffle         bool              `json:"shuffle"`
	RepeatMode      string            `json:"repeatMode"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

func snapshotFromSession(s *models.PlaybackSession) SessionSnapshot {
	queue := s.Queue
	if queue == nil {
		queue = models.SongIDList{}
	}
	return SessionSnapshot{
		ActiveDeviceID:  s.ActiveDeviceID,
		CurrentSongID:   s.CurrentSongID,
		CurrentPosition: s.Position,
		IsPlaying:       s.IsPlaying,
		Volume:          s.Volume,
		Queue:           queue,
		CurrentIndex:    s.CurrentIndex,
		Shuffle:         s.Shuffle,
		RepeatMode:      s.RepeatMode,
		UpdatedAt:       s.UpdatedAt,
	}
}
