package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a record violates a uniqueness
	// constraint, such as a duplicate email.
	ErrAlreadyExists = errors.New("record already exists")
)
