package domain

import "errors"

var (
	// ErrInvalidInput is returned before any state is touched.
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	// ErrPersistenceConflict means the card changed since it was read.
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrPersistenceUnavailable means the store could not be reached or
	// failed the operation. The same computed state may be retried.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)
