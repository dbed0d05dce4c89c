package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrVersionConflict = errors.New("session version conflict")
	ErrCorruptRecord   = errors.New("corrupt session record")
	ErrProfileNotFound = errors.New("profile not found")
)
