package websocket

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/musable/musable/models"
	"github.com/musable/musable/repository"
)

// RoomEngine owns the shared listening rooms: join/leave lifecycle, host
// authority over transport controls, the queue, chat, and sync requests.
type RoomEngine struct {
	rooms  *repository.RoomRepository
	states *StateStore
	hub    *Hub
}

func NewRoomEngine(rooms *repository.RoomRepository, states *StateStore, hub *Hub) *RoomEngine {
	return &RoomEngine{rooms: rooms, states: states, hub: hub}
}

// JoinRoomPayload carries the shareable join code.
type JoinRoomPayload struct {
	RoomCode string `json:"roomCode"`
}

// PlayPayload optionally switches song or overrides the position.
type PlayPayload struct {
	SongID   uint     `json:"song_id"`
	Position *float64 `json:"position"`
}

type SeekPayload struct {
	Position float64 `json:"position"`
}

type SongChangePayload struct {
	SongID uint `json:"song_id"`
}

type QueuePayload struct {
	SongID uint `json:"song_id"`
}

type RemoveFromQueuePayload struct {
	QueueItemID uint `json:"queue_item_id"`
}

type ChatPayload struct {
	Message string `json:"message"`
}

// RoomSnapshot is the full picture a joining client gets, with the playback
// position interpolated to the moment of joining.
type RoomSnapshot struct {
	Room         models.Room              `json:"room"`
	Participants []models.RoomParticipant `json:"participants"`
	Queue        []models.RoomQueueItem   `json:"queue"`
	Playback     PlaybackSyncEvent        `json:"playback"`
}

// HandleJoinRoom subscribes the client to a room looked up by join code.
func (e *RoomEngine) HandleJoinRoom(c *Client, payload JoinRoomPayload) {
	room, err := e.rooms.FindByCode(payload.RoomCode)
	if err != nil {
		sendErrorToClient(c, EventRoomError, "Room not found")
		return
	}

	rejoining, err := e.rooms.IsKnownParticipant(room.ID, c.userID)
	if err != nil {
		logrus.WithError(err).Error("failed to check participant")
		sendErrorToClient(c, EventRoomError, "Failed to join room")
		return
	}

	if !room.IsPublic && c.userID != room.HostID && !rejoining {
		invited, err := e.rooms.HasAcceptedInvite(room.ID, c.userID)
		if err != nil || !invited {
			sendErrorToClient(c, EventRoomError, "This room is private")
			return
		}
	}

	if !rejoining {
		count, err := e.rooms.CountActiveParticipants(room.ID)
		if err != nil {
			logrus.WithError(err).Error("failed to count participants")
			sendErrorToClient(c, EventRoomError, "Failed to join room")
			return
		}
		if count >= int64(room.MaxUsers) {
			sendErrorToClient(c, EventRoomError, "Room is full")
			return
		}
	}

	// A connection follows one room at a time.
	if prev := c.RoomID(); prev != 0 && prev != room.ID {
		e.leaveRoom(c, prev)
	}

	role := models.RoleListener
	if c.userID == room.HostID {
		role = models.RoleHost
	}
	participant, err := e.rooms.UpsertParticipant(room.ID, c.userID, role)
	if err != nil {
		logrus.WithError(err).Error("failed to upsert participant")
		sendErrorToClient(c, EventRoomError, "Failed to join room")
		return
	}

	e.hub.Subscribe(c, room.ID)
	c.setRoomID(room.ID)
	e.states.Ensure(room)

	snap, _ := e.states.Snapshot(room.ID)
	participants, _ := e.rooms.ActiveParticipants(room.ID)
	queue, _ := e.rooms.GetQueue(room.ID)

	sendToClient(c, EventRoomJoined, RoomSnapshot{
		Room:         *room,
		Participants: participants,
		Queue:        queue,
		Playback: PlaybackSyncEvent{
			Type:      "sync",
			SongID:    snap.SongID,
			Position:  snap.Position,
			Timestamp: time.Now(),
		},
	})

	e.hub.BroadcastToRoom(room.ID, EventUserJoined, map[string]interface{}{"user": participant.User, "user_id": c.userID})
	e.hub.BroadcastToRoom(room.ID, EventParticipantsUpdated, map[string]interface{}{"participants": participants})

	logrus.WithFields(logrus.Fields{
		"room_id": room.ID,
		"user_id": c.userID,
		"role":    role,
	}).Info("user joined room")
}

// HandleLeaveRoom removes the client from its current room.
func (e *RoomEngine) HandleLeaveRoom(c *Client) {
	roomID := c.RoomID()
	if roomID == 0 {
		return
	}
	e.leaveRoom(c, roomID)
}

// leaveRoom deactivates the participant, transfers host authority if the
// departing user held it, and deletes the room once nobody is left.
func (e *RoomEngine) leaveRoom(c *Client, roomID uint) {
	if err := e.rooms.DeactivateParticipant(roomID, c.userID); err != nil {
		logrus.WithError(err).Error("failed to deactivate participant")
	}
	e.hub.Unsubscribe(c, roomID)
	if c.RoomID() == roomID {
		c.setRoomID(0)
	}

	remaining, err := e.rooms.ActiveParticipants(roomID)
	if err != nil {
		logrus.WithError(err).Error("failed to list participants")
		return
	}

	if len(remaining) == 0 {
		if err := e.rooms.DeleteRoom(roomID); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Error("failed to delete empty room")
		}
		e.states.Delete(roomID)
		logrus.WithField("room_id", roomID).Info("room deleted, last participant left")
		return
	}

	room, err := e.rooms.FindByID(roomID)
	if err != nil {
		logrus.WithError(err).Error("failed to load room")
		return
	}

	if room.HostID == c.userID {
		// Earliest-joined remaining participant inherits transport authority.
		newHost := remaining[0]
		if err := e.rooms.TransferHost(roomID, newHost.UserID); err != nil {
			logrus.WithError(err).Error("failed to transfer host")
		} else {
			auditAuthorityTransfer("room_host", roomID, c.userID, newHost.UserID)
			remaining, _ = e.rooms.ActiveParticipants(roomID)
		}
	}

	e.hub.BroadcastToRoom(roomID, EventUserLeft, map[string]interface{}{"user_id": c.userID})
	e.hub.BroadcastToRoom(roomID, EventParticipantsUpdated, map[string]interface{}{"participants": remaining})
}

// HandlePlaybackControl applies a host transport command and broadcasts the
// resulting transport event to the room.
func (e *RoomEngine) HandlePlaybackControl(c *Client, kind string, input ControlInput) {
	roomID := c.RoomID()
	if roomID == 0 {
		sendErrorToClient(c, EventRoomError, "Not in a room")
		return
	}

	room, err := e.rooms.FindByID(roomID)
	if err != nil {
		sendErrorToClient(c, EventRoomError, "Room not found")
		return
	}

	// Only the host may control transport; rejected commands leave state
	// untouched.
	if room.HostID != c.userID {
		sendErrorToClient(c, EventRoomError, "Only the host can control playback")
		return
	}

	if input.SongID != 0 {
		if _, err := e.rooms.FindSong(input.SongID); err != nil {
			sendErrorToClient(c, EventRoomError, "Song not found")
			return
		}
	}

	e.states.Ensure(room)
	ev, base, err := e.states.Apply(roomID, kind, input, c.userID)
	if err != nil {
		sendErrorToClient(c, EventRoomError, err.Error())
		return
	}

	if err := e.rooms.PersistPlayback(roomID, base.SongID, base.Position, base.IsPlaying, base.ResumedAt); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("failed to persist playback")
	}

	e.hub.BroadcastToRoom(roomID, EventPlaybackSync, ev)
}

// HandleAddToQueue appends a song at the next free position.
func (e *RoomEngine) HandleAddToQueue(c *Client, payload QueuePayload) {
	roomID := c.RoomID()
	if roomID == 0 {
		sendErrorToClient(c, EventRoomError, "Not in a room")
		return
	}
	if _, err := e.rooms.FindSong(payload.SongID); err != nil {
		sendErrorToClient(c, EventRoomError, "Song not found")
		return
	}

	if _, err := e.rooms.AddToQueue(roomID, payload.SongID, c.userID); err != nil {
		logrus.WithError(err).Error("failed to add to queue")
		sendErrorToClient(c, EventRoomError, "Failed to add to queue")
		return
	}
	e.broadcastQueue(roomID)
}

// HandleAddToQueueTop inserts the song at position 1 and immediately changes
// to it.
func (e *RoomEngine) HandleAddToQueueTop(c *Client, payload QueuePayload) {
	roomID := c.RoomID()
	if roomID == 0 {
		sendErrorToClient(c, EventRoomError, "Not in a room")
		return
	}
	if _, err := e.rooms.FindSong(payload.SongID); err != nil {
		sendErrorToClient(c, EventRoomError, "Song not found")
		return
	}

	if _, err := e.rooms.AddToQueueTop(roomID, payload.SongID, c.userID); err != nil {
		logrus.WithError(err).Error("failed to add to queue top")
		sendErrorToClient(c, EventRoomError, "Failed to add to queue")
		return
	}
	e.broadcastQueue(roomID)

	room, err := e.rooms.FindByID(roomID)
	if err != nil {
		return
	}
	e.states.Ensure(room)
	ev, base, err := e.states.Apply(roomID, ControlSongChange, ControlInput{SongID: payload.SongID}, c.userID)
	if err != nil {
		logrus.WithError(err).Error("failed to change song after queue-top insert")
		return
	}
	if err := e.rooms.PersistPlayback(roomID, base.SongID, base.Position, base.IsPlaying, base.ResumedAt); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("failed to persist playback")
	}
	e.hub.BroadcastToRoom(roomID, EventPlaybackSync, ev)
}

// HandleRemoveFromQueue deletes a queue item; only the host or the user who
// added it may remove it.
func (e *RoomEngine) HandleRemoveFromQueue(c *Client, payload RemoveFromQueuePayload) {
	roomID := c.RoomID()
	if roomID == 0 {
		sendErrorToClient(c, EventRoomError, "Not in a room")
		return
	}

	item, err := e.rooms.FindQueueItem(payload.QueueItemID)
	if err != nil || item.RoomID != roomID {
		sendErrorToClient(c, EventRoomError, "Queue item not found")
		return
	}

	room, err := e.rooms.FindByID(roomID)
	if err != nil {
		sendErrorToClient(c, EventRoomError, "Room not found")
		return
	}
	if room.HostID != c.userID && item.AddedBy != c.userID {
		sendErrorToClient(c, EventRoomError, "You cannot remove this item")
		return
	}

	if _, err := e.rooms.RemoveFromQueue(item.ID); err != nil {
		logrus.WithError(err).Error("failed to remove from queue")
		sendErrorToClient(c, EventRoomError, "Failed to remove from queue")
		return
	}
	e.broadcastQueue(roomID)
}

// HandleChat relays a chat message to the room with the sender hydrated.
func (e *RoomEngine) HandleChat(c *Client, payload ChatPayload) {
	roomID := c.RoomID()
	if roomID == 0 {
		sendErrorToClient(c, EventRoomError, "Not in a room")
		return
	}

	user, err := e.rooms.FindUser(c.userID)
	if err != nil {
		sendErrorToClient(c, EventRoomError, "User not found")
		return
	}

	e.hub.BroadcastToRoom(roomID, EventChatMessage, map[string]interface{}{
		"user_id":   user.ID,
		"username":  user.Username,
		"message":   payload.Message,
		"timestamp": time.Now(),
	})
}

// HandleRequestSync replies to the caller only with the interpolated
// position; no broadcast.
func (e *RoomEngine) HandleRequestSync(c *Client) {
	roomID := c.RoomID()
	if roomID == 0 {
		sendErrorToClient(c, EventRoomError, "Not in a room")
		return
	}

	snap, ok := e.states.Snapshot(roomID)
	if !ok {
		sendErrorToClient(c, EventRoomError, "No playback state for room")
		return
	}

	sendToClient(c, EventPlaybackSync, PlaybackSyncEvent{
		Type:      "sync",
		SongID:    snap.SongID,
		Position:  snap.Position,
		Timestamp: time.Now(),
	})
}

// HandleDisconnect runs the same compensating changes as an explicit leave.
func (e *RoomEngine) HandleDisconnect(c *Client) {
	e.HandleLeaveRoom(c)
}

func (e *RoomEngine) broadcastQueue(roomID uint) {
	queue, err := e.rooms.GetQueue(roomID)
	if err != nil {
		logrus.WithError(err).Error("failed to load queue")
		return
	}
	e.hub.BroadcastToRoom(roomID, EventQueueUpdated, map[string]interface{}{"queue": queue})
}
