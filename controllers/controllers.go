package controllers

import (
	"github.com/musable/musable/repository"
)

var (
	roomRepo    *repository.RoomRepository
	sessionRepo *repository.SessionRepository
)

// Init wires the repositories the controllers use.
func Init(rooms *repository.RoomRepository, sessions *repository.SessionRepository) {
	roomRepo = rooms
	sessionRepo = sessions
}
