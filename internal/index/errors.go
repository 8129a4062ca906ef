package index

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSourceNotFound is returned when no source matches the requested name.
	ErrSourceNotFound = errors.New("source not found")
	// ErrUnknownSourceType is returned when no adapter is registered for a source type.
	ErrUnknownSourceType = errors.New("unknown source type")
	// ErrInvalidTransition is returned when a job status change would leave a terminal state
	// or skip a required state.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
