package sequence

import "errors"

var (
	// ErrConfiguration is returned for malformed construction input, such as a
	// nil sequence where one is required or a non-positive window period.
	ErrConfiguration = errors.New("invalid sequence configuration")

	// ErrProtocolViolation is returned when a cursor or reader is advanced
	// while a previous request on it is still outstanding, or when a
	// single-pass sequence is iterated twice.
	ErrProtocolViolation = errors.New("sequence protocol violation")

	// ErrEmptySequence is returned by operations that need at least one element
	ErrEmptySequence = errors.New("sequence contains no elements")
)
