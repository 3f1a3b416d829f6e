package repository

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrNotHost           = errors.New("only the host can control playback")
	ErrNotPermitted      = errors.New("not permitted")
	ErrQueueItemNotFound = errors.New("queue item not found")
	ErrSongNotFound      = errors.New("song not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrDeviceLimit       = errors.New("device limit reached")
	ErrDeviceNotOwned    = errors.New("device does not belong to user")
	ErrNoActiveDevice    = errors.New("no active device")
)
