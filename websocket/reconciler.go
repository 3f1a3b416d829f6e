package websocket

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/musable/musable/repository"
)

// Reconciler periodically persists interpolated positions for playing rooms
// whose durable row has gone stale, bounding how far a restart can drift.
type Reconciler struct {
	rooms    *repository.RoomRepository
	states   *StateStore
	interval time.Duration
	window   time.Duration
}

func NewReconciler(rooms *repository.RoomRepository, states *StateStore, interval, window time.Duration) *Reconciler {
	return &Reconciler{rooms: rooms, states: states, interval: interval, window: window}
}

// Run loops until stop closes. A failure in one room is logged and does not
// abort the tick or affect other rooms.
func (r *Reconciler) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Tick()
		case <-stop:
			return
		}
	}
}

// Tick persists every stale playing room and rebases its in-memory state so
// elapsed-time error does not compound across reconciliations.
func (r *Reconciler) Tick() {
	for _, snap := range r.states.StalePlaying(r.window) {
		err := r.rooms.PersistPlayback(snap.RoomID, snap.SongID, snap.Position, snap.IsPlaying, time.Now())
		if err != nil {
			logrus.WithError(err).WithField("room_id", snap.RoomID).Error("reconciliation failed for room")
			continue
		}
		r.states.Rebase(snap.RoomID, snap.Position)
	}
}
