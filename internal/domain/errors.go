package domain

import "errors"

var (
	// ErrNoActiveSession is returned when PAUSE, UNDO or EXIT arrives for a
	// user with no open session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionClosed is returned for events arriving after EXIT.
	ErrSessionClosed = errors.New("session already ended")
	// ErrNothingToUndo is returned for UNDO with no committed questions.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrInvalidTimestamp indicates a client timestamp outside the sanity bounds.
	ErrInvalidTimestamp = errors.New("invalid client timestamp")
	// ErrUnknownEventType indicates an event type outside NEXT/PAUSE/UNDO/EXIT.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrConcurrentModification indicates a stale session version lost a race.
	ErrConcurrentModification = errors.New("concurrent session modification")
	// ErrSessionNotFound is returned by summary and deletion lookups.
	ErrSessionNotFound = errors.New("session not found")
)
