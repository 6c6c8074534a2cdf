package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownRole       = errors.New("unknown role")
	ErrMissingUser       = errors.New("login event without user")
	ErrEmptyService      = errors.New("service name required")
	ErrSlotNotFound      = errors.New("session slot empty")
)

type ErrorKind string

// KindCorruptSession marks a persisted session that could not be decoded.
// It is recovered by discarding the slot and is never shown to the user.
const KindCorruptSession ErrorKind = "corrupt_session"

type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func transitionError(from State, kind EventKind) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, kind, from)
}
