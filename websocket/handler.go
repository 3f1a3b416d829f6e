package websocket

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/musable/musable/repository"
	"github.com/musable/musable/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Router dispatches incoming events to the two sync engines.
type Router struct {
	hub     *Hub
	rooms   *RoomEngine
	devices *DeviceEngine
}

func NewRouter(hub *Hub, rooms *RoomEngine, devices *DeviceEngine) *Router {
	return &Router{hub: hub, rooms: rooms, devices: devices}
}

// HandleConnection authenticates the handshake, upgrades the connection, and
// starts the client pumps. The bearer token comes from the Authorization
// header or a token query parameter.
func (rt *Router) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}

	userID, err := utils.ParseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := &Client{
		hub:    rt.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		connID: uuid.NewString(),
		userID: userID,
	}

	client.hub.register <- client

	go client.readPump(rt)
	go client.writePump()
}

// Route decodes one inbound frame and dispatches it.
func (rt *Router) Route(c *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		logrus.WithError(err).WithField("user_id", c.userID).Warn("malformed message")
		return
	}

	switch msg.Type {
	case EventJoinRoom:
		var payload JoinRoomPayload
		if decode(c, msg.Payload, &payload) {
			rt.rooms.HandleJoinRoom(c, payload)
		}
	case EventLeaveRoom:
		rt.rooms.HandleLeaveRoom(c)
	case EventRoomPlay:
		var payload PlayPayload
		if decode(c, msg.Payload, &payload) {
			rt.rooms.HandlePlaybackControl(c, ControlPlay, ControlInput{SongID: payload.SongID, Position: payload.Position})
		}
	case EventRoomPause:
		rt.rooms.HandlePlaybackControl(c, ControlPause, ControlInput{})
	case EventRoomSeek:
		var payload SeekPayload
		if decode(c, msg.Payload, &payload) {
			rt.rooms.HandlePlaybackControl(c, ControlSeek, ControlInput{Position: &payload.Position})
		}
	case EventRoomSongChange:
		var payload SongChangePayload
		if decode(c, msg.Payload, &payload) {
			rt.rooms.HandlePlaybackControl(c, ControlSongChange, ControlInput{SongID: payload.SongID})
		}
	case EventAddToQueue:
		var payload QueuePayload
		if decode(c, msg.Payload, &payload) {
			rt.rooms.HandleAddToQueue(c, payload)
		}
	case EventAddToQueueTop:
		var payload QueuePayload
		if decode(c, msg.Payload, &payload) {
			rt.rooms.HandleAddToQueueTop(c, payload)
		}
	case EventRemoveFromQueue:
		var payload RemoveFromQueuePayload
		if decode(c, msg.Payload, &payload) {
			rt.rooms.HandleRemoveFromQueue(c, payload)
		}
	case EventRoomChat:
		var payload ChatPayload
		if decode(c, msg.Payload, &payload) {
			rt.rooms.HandleChat(c, payload)
		}
	case EventRequestSync:
		rt.rooms.HandleRequestSync(c)

	case EventDeviceRegister:
		var info repository.DeviceInfo
		if decode(c, msg.Payload, &info) {
			rt.devices.HandleRegister(c, info)
		}
	case EventDeviceHeartbeat:
		var payload HeartbeatPayload
		if decode(c, msg.Payload, &payload) {
			rt.devices.HandleHeartbeat(c, payload)
		}
	case EventPlaybackUpdate:
		var payload PlaybackUpdatePayload
		if decode(c, msg.Payload, &payload) {
			rt.devices.HandlePlaybackUpdate(c, payload)
		}
	case EventPlaybackHandoff:
		var payload HandoffPayload
		if decode(c, msg.Payload, &payload) {
			rt.devices.HandleHandoff(c, payload)
		}
	case EventRemoteCommand:
		var payload RemoteCommandPayload
		if decode(c, msg.Payload, &payload) {
			rt.devices.HandleRemoteCommand(c, payload)
		}
	case EventDeviceSetActive:
		var payload HeartbeatPayload
		if decode(c, msg.Payload, &payload) {
			rt.devices.SetActiveDevice(c, payload.DeviceID)
		}

	default:
		logrus.WithField("type", msg.Type).Debug("unknown event type")
	}
}

func decode(c *Client, raw json.RawMessage, out interface{}) bool {
	if len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, out); err != nil {
		logrus.WithError(err).WithField("user_id", c.userID).Warn("malformed payload")
		return false
	}
	return true
}
