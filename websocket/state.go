package websocket

import (
	"fmt"
	"sync"
	"time"

	"github.com/musable/musable/models"
)

// Playback control kinds
const (
	ControlPlay       = "play"
	ControlPause      = "pause"
	ControlSeek       = "seek"
	ControlSongChange = "song_change"
)

// RoomState is the live playback state of one room. Position is a base
// offset; the true position is interpolated from the instant playback last
// resumed, so no per-tick writes are needed.
type RoomState struct {
	RoomID      uint
	SongID      uint
	Position    float64
	IsPlaying   bool
	ResumedAt   time.Time
	PersistedAt time.Time
}

// PositionAt returns the interpolated position at the given instant.
func (s *RoomState) PositionAt(now time.Time) float64 {
	if s.IsPlaying {
		return s.Position + now.Sub(s.ResumedAt).Seconds()
	}
	return s.Position
}

// ControlInput carries the optional fields of a playback control.
type ControlInput struct {
	SongID   uint
	Position *float64
}

// StateStore owns the in-memory map of live room playback states. All
// mutation happens under its lock; the clock is injectable for tests.
type StateStore struct {
	mu     sync.RWMutex
	states map[uint]*RoomState
	now    func() time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[uint]*RoomState),
		now:    time.Now,
	}
}

// Ensure returns the live state for a room, rebuilding it from the durable
// row if the process has not seen the room since starting.
func (st *StateStore) Ensure(room *models.Room) *RoomState {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.states[room.ID]; ok {
		return s
	}
	now := st.now()
	s := &RoomState{
		RoomID:      room.ID,
		SongID:      room.CurrentSongID,
		Position:    room.Position,
		IsPlaying:   room.IsPlaying,
		ResumedAt:   now,
		PersistedAt: now,
	}
	st.states[room.ID] = s
	return s
}

// Snapshot returns a copy of the room's state with the position interpolated
// to the current instant.
func (st *StateStore) Snapshot(roomID uint) (RoomState, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.states[roomID]
	if !ok {
		return RoomState{}, false
	}
	snap := *s
	snap.Position = s.PositionAt(st.now())
	return snap, true
}

// Delete drops a room's live state once the room ceases to exist.
func (st *StateStore) Delete(roomID uint) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.states, roomID)
}

// Apply advances the position by the elapsed time since last resume, then
// applies the transition. It returns the resulting transport event and a copy
// of the new base state for persistence.
func (st *StateStore) Apply(roomID uint, kind string, input ControlInput, userID uint) (PlaybackSyncEvent, RoomState, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.states[roomID]
	if !ok {
		return PlaybackSyncEvent{}, RoomState{}, fmt.Errorf("no live state for room %d", roomID)
	}

	now := st.now()

	// Advance first so the transition starts from the true position.
	s.Position = s.PositionAt(now)

	switch kind {
	case ControlPlay:
		if input.SongID != 0 && input.SongID != s.SongID {
			s.SongID = input.SongID
			s.Position = 0
		}
		if input.Position != nil {
			s.Position = *input.Position
		}
		s.IsPlaying = true
		s.ResumedAt = now
	case ControlPause:
		s.IsPlaying = false
	case ControlSeek:
		if input.Position == nil {
			return PlaybackSyncEvent{}, RoomState{}, fmt.Errorf("seek requires a position")
		}
		s.Position = *input.Position
		if s.IsPlaying {
			s.ResumedAt = now
		}
	case ControlSongChange:
		if input.SongID == 0 {
			return PlaybackSyncEvent{}, RoomState{}, fmt.Errorf("song_change requires a song id")
		}
		s.SongID = input.SongID
		s.Position = 0
		s.IsPlaying = true
		s.ResumedAt = now
	default:
		return PlaybackSyncEvent{}, RoomState{}, fmt.Errorf("unknown playback control %q", kind)
	}

	s.PersistedAt = now

	ev := PlaybackSyncEvent{
		Type:      kind,
		SongID:    s.SongID,
		Position:  s.Position,
		Timestamp: now,
		UserID:    userID,
	}
	return ev, *s, nil
}

// StalePlaying returns a snapshot of every playing room whose last persisted
// write is older than the window, interpolated to now.
func (st *StateStore) StalePlaying(window time.Duration) []RoomState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	now := st.now()
	var stale []RoomState
	for _, s := range st.states {
		if s.IsPlaying && now.Sub(s.PersistedAt) >= window {
			snap := *s
			snap.Position = s.PositionAt(now)
			stale = append(stale, snap)
		}
	}
	return stale
}

// Rebase overwrites the base position after a reconciliation write, resetting
// resume to now so elapsed-time error does not compound.
func (st *StateStore) Rebase(roomID uint, position float64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.states[roomID]
	if !ok {
		return
	}
	now := st.now()
	s.Position = position
	s.ResumedAt = now
	s.PersistedAt = now
}
