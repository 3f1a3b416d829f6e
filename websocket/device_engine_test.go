package websocket

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musable/musable/models"
	"github.com/musable/musable/repository"
)

func TestRegisterDeviceRepliesWithSnapshot(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")
	c := env.client(user.ID)

	registerTestDevice(t, env, c, "dev-a")

	msgs := received(t, c)
	require.NotNil(t, lastOfType(msgs, EventDeviceRegistered))
	require.NotNil(t, lastOfType(msgs, EventDevicesUpdated))

	sync := lastOfType(msgs, EventPlaybackSync)
	require.NotNil(t, sync)
	var snap SessionSnapshot
	decodePayload(t, sync, &snap)
	assert.Nil(t, snap.ActiveDeviceID)
	assert.Equal(t, models.RepeatNone, snap.RepeatMode)

	assert.Equal(t, "dev-a", c.DeviceID())
}

func TestRegisterEleventhDeviceFails(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")

	for i := 0; i < 10; i++ {
		_, err := env.sessions.RegisterDevice(user.ID, repository.DeviceInfo{
			DeviceID: fmt.Sprintf("dev-%d", i),
		})
		require.NoError(t, err)
	}

	c := env.client(user.ID)
	registerTestDevice(t, env, c, "dev-10")

	msgs := received(t, c)
	errMsg := lastOfType(msgs, EventError)
	require.NotNil(t, errMsg)
	var payload map[string]string
	decodePayload(t, errMsg, &payload)
	assert.Equal(t, "Device limit reached", payload["message"])

	devices, err := env.sessions.ListDevices(user.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 10)
	assert.Empty(t, c.DeviceID())
}

func TestSetActiveDeviceEventPair(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")

	connA := env.client(user.ID)
	connB := env.client(user.ID)
	registerTestDevice(t, env, connA, "dev-a")
	registerTestDevice(t, env, connB, "dev-b")

	env.devices.SetActiveDevice(connA, "dev-a")
	drainAll(t, connA, connB)

	env.devices.SetActiveDevice(connB, "dev-b")

	msgsA := received(t, connA)
	msgsB := received(t, connB)

	// Exactly one lost event to the prior holder, one became event to the
	// new one.
	assert.Equal(t, 1, countOfType(msgsA, EventLostActivePlayer))
	assert.Equal(t, 0, countOfType(msgsA, EventBecameActivePlayer))
	assert.Equal(t, 1, countOfType(msgsB, EventBecameActivePlayer))
	assert.Equal(t, 0, countOfType(msgsB, EventLostActivePlayer))

	// Both connections get the general snapshot.
	for _, msgs := range [][]Message{msgsA, msgsB} {
		sync := lastOfType(msgs, EventPlaybackSync)
		require.NotNil(t, sync)
		var snap SessionSnapshot
		decodePayload(t, sync, &snap)
		require.NotNil(t, snap.ActiveDeviceID)
		assert.Equal(t, "dev-b", *snap.ActiveDeviceID)
	}
}

func TestSetActiveDeviceNotOwned(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	_, err := env.sessions.RegisterDevice(bob.ID, repository.DeviceInfo{DeviceID: "bobs"})
	require.NoError(t, err)

	c := env.client(alice.ID)
	env.devices.SetActiveDevice(c, "bobs")

	require.NotNil(t, lastOfType(received(t, c), EventError))
}

func TestHandoffCarriesUnchangedSong(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")

	connA := env.client(user.ID)
	connB := env.client(user.ID)
	registerTestDevice(t, env, connA, "dev-a")
	registerTestDevice(t, env, connB, "dev-b")

	env.devices.SetActiveDevice(connA, "dev-a")

	// Device A is mid-song when the user hands off.
	session, err := env.sessions.GetSession(user.ID)
	require.NoError(t, err)
	session.CurrentSongID = 42
	session.Position = 73.5
	require.NoError(t, env.sessions.SaveSession(session))
	drainAll(t, connA, connB)

	env.devices.HandleHandoff(connA, HandoffPayload{ToDeviceID: "dev-b"})

	msgsA := received(t, connA)
	msgsB := received(t, connB)

	assert.Equal(t, 1, countOfType(msgsA, EventLostActivePlayer))

	became := lastOfType(msgsB, EventBecameActivePlayer)
	require.NotNil(t, became)
	var becamePayload struct {
		DeviceID string          `json:"deviceId"`
		Payload  SessionSnapshot `json:"payload"`
	}
	decodePayload(t, became, &becamePayload)
	assert.Equal(t, "dev-b", becamePayload.DeviceID)
	assert.Equal(t, uint(42), becamePayload.Payload.CurrentSongID)

	handoff := lastOfType(msgsB, EventHandoff)
	require.NotNil(t, handoff)
	decodePayload(t, handoff, &becamePayload)
	assert.Equal(t, uint(42), becamePayload.Payload.CurrentSongID)
	assert.InDelta(t, 73.5, becamePayload.Payload.CurrentPosition, 0.001)
}

func TestHandoffFromInactiveDeviceFails(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")

	connA := env.client(user.ID)
	connB := env.client(user.ID)
	registerTestDevice(t, env, connA, "dev-a")
	registerTestDevice(t, env, connB, "dev-b")

	env.devices.SetActiveDevice(connB, "dev-b")
	drainAll(t, connA, connB)

	// dev-a does not hold authority, so it cannot hand off.
	env.devices.HandleHandoff(connA, HandoffPayload{ToDeviceID: "dev-b"})
	require.NotNil(t, lastOfType(received(t, connA), EventError))
}

func TestPlaybackUpdateStealsAuthorityWhenPlaying(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")

	connA := env.client(user.ID)
	connB := env.client(user.ID)
	registerTestDevice(t, env, connA, "dev-a")
	registerTestDevice(t, env, connB, "dev-b")

	env.devices.SetActiveDevice(connA, "dev-a")
	drainAll(t, connA, connB)

	// B starts playing; authority moves to B before the merge.
	playing := true
	pos := 12.0
	env.devices.HandlePlaybackUpdate(connB, PlaybackUpdatePayload{IsPlaying: &playing, Position: &pos})

	session, err := env.sessions.GetSession(user.ID)
	require.NoError(t, err)
	require.NotNil(t, session.ActiveDeviceID)
	assert.Equal(t, "dev-b", *session.ActiveDeviceID)
	assert.True(t, session.IsPlaying)
	assert.InDelta(t, 12.0, session.Position, 0.001)

	assert.Equal(t, 1, countOfType(received(t, connA), EventLostActivePlayer))
}

func TestPlaybackUpdatePartialMerge(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")
	c := env.client(user.ID)
	registerTestDevice(t, env, c, "dev-a")
	drainAll(t, c)

	volume := 0.5
	queue := models.SongIDList{1, 2, 3}
	env.devices.HandlePlaybackUpdate(c, PlaybackUpdatePayload{Volume: &volume, Queue: &queue})

	session, err := env.sessions.GetSession(user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, session.Volume, 0.001)
	assert.Equal(t, models.SongIDList{1, 2, 3}, session.Queue)
	// Untouched fields keep their values.
	assert.False(t, session.IsPlaying)

	sync := lastOfType(received(t, c), EventPlaybackSync)
	require.NotNil(t, sync)
	var snap SessionSnapshot
	decodePayload(t, sync, &snap)
	assert.Equal(t, models.SongIDList{1, 2, 3}, snap.Queue)
}

func TestRemoteCommandRequiresActiveDevice(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")
	c := env.client(user.ID)

	env.devices.HandleRemoteCommand(c, RemoteCommandPayload{Command: CommandPlay})

	errMsg := lastOfType(received(t, c), EventError)
	require.NotNil(t, errMsg)
	var payload map[string]string
	decodePayload(t, errMsg, &payload)
	assert.Equal(t, "No active device", payload["message"])
}

func TestRemoteCommandRelaysToActiveOnly(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")

	active := env.client(user.ID)
	remote := env.client(user.ID)
	registerTestDevice(t, env, active, "dev-a")
	registerTestDevice(t, env, remote, "dev-b")
	env.devices.SetActiveDevice(active, "dev-a")
	drainAll(t, active, remote)

	value := 30.0
	env.devices.HandleRemoteCommand(remote, RemoteCommandPayload{Command: CommandSeek, Value: &value})

	msgs := received(t, active)
	cmd := lastOfType(msgs, EventRemoteCommandOut)
	require.NotNil(t, cmd)
	var cmdPayload struct {
		DeviceID string `json:"deviceId"`
		Payload  struct {
			Command string   `json:"command"`
			Value   *float64 `json:"value"`
		} `json:"payload"`
	}
	decodePayload(t, cmd, &cmdPayload)
	assert.Equal(t, "dev-a", cmdPayload.DeviceID)
	assert.Equal(t, CommandSeek, cmdPayload.Payload.Command)
	require.NotNil(t, cmdPayload.Payload.Value)
	assert.InDelta(t, 30.0, *cmdPayload.Payload.Value, 0.001)

	// The command is targeted, not broadcast.
	assert.Zero(t, countOfType(received(t, remote), EventRemoteCommandOut))

	// Seek is folded into the session for late observers.
	session, err := env.sessions.GetSession(user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, session.Position, 0.001)
}

func TestDisconnectClearsActiveDevice(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")

	active := env.client(user.ID)
	other := env.client(user.ID)
	registerTestDevice(t, env, active, "dev-a")
	registerTestDevice(t, env, other, "dev-b")
	env.devices.SetActiveDevice(active, "dev-a")

	playing := true
	env.devices.HandlePlaybackUpdate(active, PlaybackUpdatePayload{IsPlaying: &playing})
	drainAll(t, active, other)

	env.devices.HandleDisconnect(active)

	session, err := env.sessions.GetSession(user.ID)
	require.NoError(t, err)
	assert.Nil(t, session.ActiveDeviceID)
	assert.False(t, session.IsPlaying)

	sync := lastOfType(received(t, other), EventPlaybackSync)
	require.NotNil(t, sync)
	var snap SessionSnapshot
	decodePayload(t, sync, &snap)
	assert.Nil(t, snap.ActiveDeviceID)
	assert.False(t, snap.IsPlaying)
}

func TestDisconnectOfInactiveDeviceIsNoop(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")

	active := env.client(user.ID)
	other := env.client(user.ID)
	registerTestDevice(t, env, active, "dev-a")
	registerTestDevice(t, env, other, "dev-b")
	env.devices.SetActiveDevice(active, "dev-a")
	drainAll(t, active, other)

	env.devices.HandleDisconnect(other)

	session, err := env.sessions.GetSession(user.ID)
	require.NoError(t, err)
	require.NotNil(t, session.ActiveDeviceID)
	assert.Equal(t, "dev-a", *session.ActiveDeviceID)
}
