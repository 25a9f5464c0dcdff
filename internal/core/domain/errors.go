package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrSessionEnded    = errors.New("session already ended")
	ErrNoActiveSession = errors.New("no active session for device")
)
