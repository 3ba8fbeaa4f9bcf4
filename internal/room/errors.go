package room

import "errors"

// Sentinel errors surfaced to clients per spec.md §7.
var (
	ErrBadRequest        = errors.New("bad request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNicknameTaken     = errors.New("nickname taken")
	ErrNicknameInUse     = errors.New("nickname in use")
	ErrRoomClosed        = errors.New("room closed")
	ErrRoomNotFound      = errors.New("room not found")
	ErrSupersededByNewer = errors.New("superseded by newer connection")
)
