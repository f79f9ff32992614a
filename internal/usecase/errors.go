package usecase

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSignalNotFound  = errors.New("signal not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrInvalidSignal   = errors.New("invalid signal descriptor")
	ErrCursorsLocked   = errors.New("cursors require a paused window")
)
