package storage

import "errors"

var (
	// ErrDuplicateKey is returned when a mirror row with the same key was
	// already written. Mirror rows are write-once.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned for nil or keyless records.
	ErrInvalidInput = errors.New("invalid input")
)
