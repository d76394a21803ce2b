package repository

import "errors"

var (
	// ErrInvalidRecord indicates a record without an ID or timestamp
	ErrInvalidRecord = errors.New("invalid analysis record")

	// ErrRepositoryUnavailable indicates the backing store could not be reached
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
