package store

import "errors"

// Common storage errors
var (
	// ErrNotFound indicates that the requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists indicates a uniqueness conflict on insert
	ErrAlreadyExists = errors.New("record already exists")
)
