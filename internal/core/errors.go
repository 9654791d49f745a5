package core

import "errors"

// Recoverable, local failures reported back to the originating caller.
// None of these should ever take the process down.
var (
	ErrNotFound     = errors.New("not found")
	ErrAmbiguousID  = errors.New("ambiguous session id")
	ErrUnauthorized = errors.New("unauthorized")
	ErrResourceBusy = errors.New("resource busy")
	ErrInvalidToken = errors.New("invalid token")
	ErrCapacity     = errors.New("session at capacity")
	ErrInactive     = errors.New("session not active")
)
