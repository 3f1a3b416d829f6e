package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musable/musable/models"
)

func TestJoinRoomUnknownCode(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, "alice")
	c := env.client(user.ID)

	env.rooms.HandleJoinRoom(c, JoinRoomPayload{RoomCode: "NOSUCH"})

	msgs := received(t, c)
	require.NotNil(t, lastOfType(msgs, EventRoomError))
	assert.Zero(t, c.RoomID())
}

func TestJoinRoomCapacity(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")
	second := env.user(t, "bob")
	third := env.user(t, "carol")

	room, err := env.roomRepo.CreateRoom("Duo", "", host.ID, true, 2)
	require.NoError(t, err)

	hostClient := env.client(host.ID)
	env.rooms.HandleJoinRoom(hostClient, JoinRoomPayload{RoomCode: room.Code})
	msgs := received(t, hostClient)
	joined := lastOfType(msgs, EventRoomJoined)
	require.NotNil(t, joined)

	var snap RoomSnapshot
	decodePayload(t, joined, &snap)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, models.RoleHost, snap.Participants[0].Role)

	secondClient := env.client(second.ID)
	env.rooms.HandleJoinRoom(secondClient, JoinRoomPayload{RoomCode: room.Code})
	msgs = received(t, secondClient)
	joined = lastOfType(msgs, EventRoomJoined)
	require.NotNil(t, joined)
	decodePayload(t, joined, &snap)
	require.Len(t, snap.Participants, 2)

	// Capacity 2 is now exhausted.
	thirdClient := env.client(third.ID)
	env.rooms.HandleJoinRoom(thirdClient, JoinRoomPayload{RoomCode: room.Code})
	msgs = received(t, thirdClient)
	errMsg := lastOfType(msgs, EventRoomError)
	require.NotNil(t, errMsg)
	var payload map[string]string
	decodePayload(t, errMsg, &payload)
	assert.Equal(t, "Room is full", payload["message"])
	assert.Zero(t, thirdClient.RoomID())
}

func TestJoinPrivateRoomRequiresInvite(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")
	outsider := env.user(t, "bob")
	invited := env.user(t, "carol")

	room, err := env.roomRepo.CreateRoom("Private", "", host.ID, false, 5)
	require.NoError(t, err)

	c := env.client(outsider.ID)
	env.rooms.HandleJoinRoom(c, JoinRoomPayload{RoomCode: room.Code})
	require.NotNil(t, lastOfType(received(t, c), EventRoomError))

	require.NoError(t, env.db.Create(&models.RoomInvite{
		RoomID:     room.ID,
		SenderID:   host.ID,
		ReceiverID: invited.ID,
		Status:     models.InviteAccepted,
	}).Error)

	ic := env.client(invited.ID)
	env.rooms.HandleJoinRoom(ic, JoinRoomPayload{RoomCode: room.Code})
	require.NotNil(t, lastOfType(received(t, ic), EventRoomJoined))
}

func TestNonHostPlaybackControlRejected(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")
	listener := env.user(t, "bob")
	song := env.song(t, "Track")

	room, err := env.roomRepo.CreateRoom("Party", "", host.ID, true, 5)
	require.NoError(t, err)

	hostClient := env.client(host.ID)
	listenerClient := env.client(listener.ID)
	env.rooms.HandleJoinRoom(hostClient, JoinRoomPayload{RoomCode: room.Code})
	env.rooms.HandleJoinRoom(listenerClient, JoinRoomPayload{RoomCode: room.Code})

	env.rooms.HandlePlaybackControl(hostClient, ControlPlay, ControlInput{SongID: song.ID})
	drainAll(t, hostClient, listenerClient)

	before, ok := env.states.Snapshot(room.ID)
	require.True(t, ok)
	rowBefore, err := env.roomRepo.FindByID(room.ID)
	require.NoError(t, err)

	env.rooms.HandlePlaybackControl(listenerClient, ControlPause, ControlInput{})

	msgs := received(t, listenerClient)
	errMsg := lastOfType(msgs, EventRoomError)
	require.NotNil(t, errMsg)
	var payload map[string]string
	decodePayload(t, errMsg, &payload)
	assert.Equal(t, "Only the host can control playback", payload["message"])

	// Rejected command left state untouched, in memory and on disk.
	after, ok := env.states.Snapshot(room.ID)
	require.True(t, ok)
	assert.Equal(t, before, after)

	rowAfter, err := env.roomRepo.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, rowBefore.IsPlaying, rowAfter.IsPlaying)
	assert.Equal(t, rowBefore.Position, rowAfter.Position)

	// The host never hears about the rejected attempt.
	assert.Empty(t, received(t, hostClient))
}

func TestPlaybackControlBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")
	listener := env.user(t, "bob")
	song := env.song(t, "Track")

	room, err := env.roomRepo.CreateRoom("Party", "", host.ID, true, 5)
	require.NoError(t, err)

	hostClient := env.client(host.ID)
	listenerClient := env.client(listener.ID)
	env.rooms.HandleJoinRoom(hostClient, JoinRoomPayload{RoomCode: room.Code})
	env.rooms.HandleJoinRoom(listenerClient, JoinRoomPayload{RoomCode: room.Code})
	drainAll(t, hostClient, listenerClient)

	env.rooms.HandlePlaybackControl(hostClient, ControlPlay, ControlInput{SongID: song.ID})

	for _, c := range []*Client{hostClient, listenerClient} {
		msgs := received(t, c)
		sync := lastOfType(msgs, EventPlaybackSync)
		require.NotNil(t, sync)
		var ev PlaybackSyncEvent
		decodePayload(t, sync, &ev)
		assert.Equal(t, ControlPlay, ev.Type)
		assert.Equal(t, song.ID, ev.SongID)
		assert.Equal(t, host.ID, ev.UserID)
	}

	// The durable row reflects the accepted control.
	row, err := env.roomRepo.FindByID(room.ID)
	require.NoError(t, err)
	assert.True(t, row.IsPlaying)
	assert.Equal(t, song.ID, row.CurrentSongID)
}

func TestHostTransferOnLeave(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")
	listener := env.user(t, "bob")
	song := env.song(t, "Track")

	room, err := env.roomRepo.CreateRoom("Party", "", host.ID, true, 5)
	require.NoError(t, err)

	hostClient := env.client(host.ID)
	listenerClient := env.client(listener.ID)
	env.rooms.HandleJoinRoom(hostClient, JoinRoomPayload{RoomCode: room.Code})
	env.rooms.HandleJoinRoom(listenerClient, JoinRoomPayload{RoomCode: room.Code})

	env.rooms.HandlePlaybackControl(hostClient, ControlPlay, ControlInput{SongID: song.ID})
	env.clock.advance(3 * time.Second)
	drainAll(t, hostClient, listenerClient)

	// Host disconnects; authority moves to the earliest-joined remaining
	// participant.
	env.rooms.HandleDisconnect(hostClient)

	updated, err := env.roomRepo.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, listener.ID, updated.HostID)

	var hosts int64
	env.db.Model(&models.RoomParticipant{}).
		Where("room_id = ? AND role = ? AND is_active = ?", room.ID, models.RoleHost, true).
		Count(&hosts)
	assert.Equal(t, int64(1), hosts)

	msgs := received(t, listenerClient)
	require.NotNil(t, lastOfType(msgs, EventUserLeft))
	require.NotNil(t, lastOfType(msgs, EventParticipantsUpdated))

	// The former host rejoins and can no longer control transport.
	env.rooms.HandleJoinRoom(hostClient, JoinRoomPayload{RoomCode: room.Code})
	received(t, hostClient)
	env.rooms.HandlePlaybackControl(hostClient, ControlPause, ControlInput{})
	errMsg := lastOfType(received(t, hostClient), EventRoomError)
	require.NotNil(t, errMsg)
	var payload map[string]string
	decodePayload(t, errMsg, &payload)
	assert.Equal(t, "Only the host can control playback", payload["message"])
}

func TestRoomDeletedWhenLastParticipantLeaves(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")

	room, err := env.roomRepo.CreateRoom("Solo", "", host.ID, true, 5)
	require.NoError(t, err)

	c := env.client(host.ID)
	env.rooms.HandleJoinRoom(c, JoinRoomPayload{RoomCode: room.Code})
	env.rooms.HandleLeaveRoom(c)

	_, err = env.roomRepo.FindByID(room.ID)
	assert.Error(t, err)

	_, ok := env.states.Snapshot(room.ID)
	assert.False(t, ok)
}

func TestAddToQueueTopChangesSong(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")
	first := env.song(t, "First")
	urgent := env.song(t, "Urgent")

	room, err := env.roomRepo.CreateRoom("Party", "", host.ID, true, 5)
	require.NoError(t, err)

	c := env.client(host.ID)
	env.rooms.HandleJoinRoom(c, JoinRoomPayload{RoomCode: room.Code})
	env.rooms.HandleAddToQueue(c, QueuePayload{SongID: first.ID})
	drainAll(t, c)

	env.rooms.HandleAddToQueueTop(c, QueuePayload{SongID: urgent.ID})

	msgs := received(t, c)
	queueMsg := lastOfType(msgs, EventQueueUpdated)
	require.NotNil(t, queueMsg)
	var queuePayload struct {
		Queue []models.RoomQueueItem `json:"queue"`
	}
	decodePayload(t, queueMsg, &queuePayload)
	require.Len(t, queuePayload.Queue, 2)
	assert.Equal(t, urgent.ID, queuePayload.Queue[0].SongID)
	assert.Equal(t, 1, queuePayload.Queue[0].Position)

	// Queue-top insert switches playback immediately.
	sync := lastOfType(msgs, EventPlaybackSync)
	require.NotNil(t, sync)
	var ev PlaybackSyncEvent
	decodePayload(t, sync, &ev)
	assert.Equal(t, ControlSongChange, ev.Type)
	assert.Equal(t, urgent.ID, ev.SongID)
	assert.Equal(t, 0.0, ev.Position)
}

func TestRemoveFromQueuePermissions(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")
	adder := env.user(t, "bob")
	other := env.user(t, "carol")
	song := env.song(t, "Track")

	room, err := env.roomRepo.CreateRoom("Party", "", host.ID, true, 5)
	require.NoError(t, err)

	hostClient := env.client(host.ID)
	adderClient := env.client(adder.ID)
	otherClient := env.client(other.ID)
	env.rooms.HandleJoinRoom(hostClient, JoinRoomPayload{RoomCode: room.Code})
	env.rooms.HandleJoinRoom(adderClient, JoinRoomPayload{RoomCode: room.Code})
	env.rooms.HandleJoinRoom(otherClient, JoinRoomPayload{RoomCode: room.Code})

	env.rooms.HandleAddToQueue(adderClient, QueuePayload{SongID: song.ID})
	queue, err := env.roomRepo.GetQueue(room.ID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	drainAll(t, hostClient, adderClient, otherClient)

	// A bystander cannot remove someone else's item.
	env.rooms.HandleRemoveFromQueue(otherClient, RemoveFromQueuePayload{QueueItemID: queue[0].ID})
	require.NotNil(t, lastOfType(received(t, otherClient), EventRoomError))
	queue, _ = env.roomRepo.GetQueue(room.ID)
	assert.Len(t, queue, 1)

	// The adder can.
	env.rooms.HandleRemoveFromQueue(adderClient, RemoveFromQueuePayload{QueueItemID: queue[0].ID})
	queue, _ = env.roomRepo.GetQueue(room.ID)
	assert.Empty(t, queue)
}

func TestRequestSyncRepliesToCallerOnly(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")
	listener := env.user(t, "bob")
	song := env.song(t, "Track")

	room, err := env.roomRepo.CreateRoom("Party", "", host.ID, true, 5)
	require.NoError(t, err)

	hostClient := env.client(host.ID)
	listenerClient := env.client(listener.ID)
	env.rooms.HandleJoinRoom(hostClient, JoinRoomPayload{RoomCode: room.Code})
	env.rooms.HandleJoinRoom(listenerClient, JoinRoomPayload{RoomCode: room.Code})
	env.rooms.HandlePlaybackControl(hostClient, ControlPlay, ControlInput{SongID: song.ID})
	env.clock.advance(6 * time.Second)
	drainAll(t, hostClient, listenerClient)

	env.rooms.HandleRequestSync(listenerClient)

	msgs := received(t, listenerClient)
	sync := lastOfType(msgs, EventPlaybackSync)
	require.NotNil(t, sync)
	var ev PlaybackSyncEvent
	decodePayload(t, sync, &ev)
	assert.Equal(t, "sync", ev.Type)
	assert.InDelta(t, 6.0, ev.Position, 0.001)

	// No broadcast to the rest of the room.
	assert.Empty(t, received(t, hostClient))
}

func TestChatHydratesSender(t *testing.T) {
	env := newTestEnv(t)
	host := env.user(t, "alice")

	room, err := env.roomRepo.CreateRoom("Party", "", host.ID, true, 5)
	require.NoError(t, err)

	c := env.client(host.ID)
	env.rooms.HandleJoinRoom(c, JoinRoomPayload{RoomCode: room.Code})
	drainAll(t, c)

	env.rooms.HandleChat(c, ChatPayload{Message: "hello"})

	msgs := received(t, c)
	chat := lastOfType(msgs, EventChatMessage)
	require.NotNil(t, chat)
	var payload map[string]interface{}
	decodePayload(t, chat, &payload)
	assert.Equal(t, "alice", payload["username"])
	assert.Equal(t, "hello", payload["message"])
}
