package repository

import "errors"

var (
	// ErrNotFound is returned when a record does not exist, or when a
	// compare-and-swap precondition does not hold.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique field is already taken.
	ErrDuplicate = errors.New("duplicate")
)
