package container

import "errors"

var (
	// ErrFormatMismatch means the bytes are not the format being probed.
	ErrFormatMismatch = errors.New("format mismatch")
	// ErrMalformed means the format matched but its structure is invalid.
	ErrMalformed = errors.New("malformed container")
	// ErrEntryNotFound is returned when a named entry does not exist.
	ErrEntryNotFound = errors.New("entry not found")
)
