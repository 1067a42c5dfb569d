package domain

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomClosed      = errors.New("room is closed")
	ErrInvalidRoomID   = errors.New("invalid room id")
	ErrNotParticipant  = errors.New("user is not in the room")
	ErrInvalidTrack    = errors.New("invalid track: missing song or song id")
	ErrTrackNotFound   = errors.New("song not found in queue")
	ErrInvalidPosition = errors.New("invalid seek position")
	ErrInvalidIndex    = errors.New("queue index out of range")
	ErrNoCurrentTrack  = errors.New("no song is currently loaded")
	ErrNoPreviousTrack = errors.New("no previous song in history")
	ErrNotPlaying      = errors.New("playback is not running")
	ErrAlreadyPlaying  = errors.New("playback is already running")
	ErrQueueLimit      = errors.New("queue limit reached")
	ErrDuplicateTrack  = errors.New("song is already in the queue")
)
