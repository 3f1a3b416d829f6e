package websocket

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/musable/musable/models"
	"github.com/musable/musable/repository"
)

// testEnv wires real repositories over an in-memory database to both engines.
type testEnv struct {
	db       *gorm.DB
	hub      *Hub
	states   *StateStore
	clock    *fixedClock
	rooms    *RoomEngine
	devices  *DeviceEngine
	roomRepo *repository.RoomRepository
	sessions *repository.SessionRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Song{},
		&models.Room{},
		&models.RoomParticipant{},
		&models.RoomQueueItem{},
		&models.RoomInvite{},
		&models.Device{},
		&models.PlaybackSession{},
	))

	hub := NewHub()
	states, clock := newTestStore(t)
	roomRepo := repository.NewRoomRepository(db, 6)
	sessions := repository.NewSessionRepository(db, 10)

	return &testEnv{
		db:       db,
		hub:      hub,
		states:   states,
		clock:    clock,
		rooms:    NewRoomEngine(roomRepo, states, hub),
		devices:  NewDeviceEngine(sessions, hub),
		roomRepo: roomRepo,
		sessions: sessions,
	}
}

func (env *testEnv) user(t *testing.T, username string) *models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", Password: "secret1"}
	require.NoError(t, env.db.Create(&user).Error)
	return &user
}

func (env *testEnv) song(t *testing.T, title string) *models.Song {
	t.Helper()
	song := models.Song{Title: title, Artist: "Artist", Duration: 200}
	require.NoError(t, env.db.Create(&song).Error)
	return &song
}

// client creates a connected test client registered with the hub; no real
// socket is involved, messages accumulate in the send buffer.
func (env *testEnv) client(userID uint) *Client {
	c := &Client{
		hub:    env.hub,
		send:   make(chan []byte, 64),
		connID: uuid.NewString(),
		userID: userID,
	}
	env.hub.clients[c] = true
	env.hub.users.add(userID, c)
	return c
}

// received drains and decodes everything queued on the client.
func received(t *testing.T, c *Client) []Message {
	t.Helper()
	var msgs []Message
	for {
		select {
		case raw := <-c.send:
			var msg Message
			require.NoError(t, json.Unmarshal(raw, &msg))
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// lastOfType returns the most recent message of the given type, or nil.
func lastOfType(msgs []Message, msgType string) *Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == msgType {
			return &msgs[i]
		}
	}
	return nil
}

func countOfType(msgs []Message, msgType string) int {
	n := 0
	for _, m := range msgs {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

func decodePayload(t *testing.T, msg *Message, out interface{}) {
	t.Helper()
	require.NotNil(t, msg)
	require.NoError(t, json.Unmarshal(msg.Payload, out))
}

func drainAll(t *testing.T, clients ...*Client) {
	t.Helper()
	for _, c := range clients {
		received(t, c)
	}
}

func registerTestDevice(t *testing.T, env *testEnv, c *Client, deviceID string) {
	t.Helper()
	env.devices.HandleRegister(c, repository.DeviceInfo{
		DeviceID: deviceID,
		Name:     fmt.Sprintf("Device %s", deviceID),
		Type:     "desktop",
	})
}
